package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/utils"
)

// ContextTxKey stores the request transaction inside Gin context.
const ContextTxKey = "tx"

const contextAfterCommitKey = "tx_after_commit"

// commit is swapped in tests to simulate a failing database.
var commit = func(tx *gorm.DB) error { return tx.Commit().Error }

// bufferedWriter holds the status and body a handler writes until the transaction outcome is known.
// Headers go straight to the underlying header map.
type bufferedWriter struct {
	gin.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *bufferedWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *bufferedWriter) Size() int { return w.body.Len() }

func (w *bufferedWriter) Written() bool { return w.status != 0 }

func (w *bufferedWriter) Flush() {}

func (w *bufferedWriter) flushTo(dst gin.ResponseWriter) {
	dst.WriteHeader(w.Status())
	if w.body.Len() == 0 {
		dst.WriteHeaderNow()
		return
	}
	if _, err := dst.Write(w.body.Bytes()); err != nil {
		utils.Logger.Debug("write response", zap.Error(err))
	}
}

// Transaction runs every request inside one database transaction. It commits when the handler
// chain ends with a status below 400 and rolls back otherwise, including on panic. The response
// is held back until the commit succeeds; a failed commit replaces it with a 500.
func Transaction(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tx := db.WithContext(ctx.Request.Context()).Begin()
		if tx.Error != nil {
			utils.Logger.Error("begin transaction", zap.Error(tx.Error))
			ctx.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		ctx.Set(ContextTxKey, tx)

		orig := ctx.Writer
		buf := &bufferedWriter{ResponseWriter: orig}
		ctx.Writer = buf

		done := false
		defer func() {
			ctx.Writer = orig
			if !done {
				tx.Rollback()
			}
		}()

		ctx.Next()

		done = true
		ctx.Writer = orig
		if buf.Status() >= http.StatusBadRequest || len(ctx.Errors) > 0 {
			tx.Rollback()
			buf.flushTo(orig)
			return
		}
		if err := commit(tx); err != nil {
			utils.Logger.Error("commit transaction", zap.Error(err), zap.String("path", ctx.Request.URL.Path))
			commitFailed(ctx)
			return
		}
		for _, hook := range afterCommitHooks(ctx) {
			hook()
		}
		buf.flushTo(orig)
	}
}

// commitFailed discards what the handler produced and answers 500.
func commitFailed(ctx *gin.Context) {
	h := ctx.Writer.Header()
	for _, k := range []string{"Location", "Set-Cookie", "Content-Type", "Content-Length"} {
		h.Del(k)
	}
	if isAPIRequest(ctx) {
		utils.Error(ctx, http.StatusInternalServerError, "internal server error", "")
		return
	}
	ctx.HTML(http.StatusInternalServerError, "error.html", gin.H{
		"Status":  http.StatusInternalServerError,
		"Title":   "Internal Server Error",
		"Message": "Something went wrong. Please try again.",
	})
	ctx.Abort()
}

// AfterCommit queues fn to run once the request transaction has committed. It never runs when
// the transaction rolls back.
func AfterCommit(ctx *gin.Context, fn func()) {
	ctx.Set(contextAfterCommitKey, append(afterCommitHooks(ctx), fn))
}

func afterCommitHooks(ctx *gin.Context) []func() {
	if v, ok := ctx.Get(contextAfterCommitKey); ok {
		return v.([]func())
	}
	return nil
}

// DB returns the request transaction, or panics when Transaction is not installed.
func DB(ctx *gin.Context) *gorm.DB {
	return ctx.MustGet(ContextTxKey).(*gorm.DB)
}
