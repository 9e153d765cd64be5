package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/routes"
	"github.com/cppla/bloghub/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP server on APP_PORT. SIGTERM or SIGINT drains in-flight requests and queued
mail before exiting; SIGUSR2 restarts the binary without dropping the listening socket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		if err := models.InsertRoles(a.db); err != nil {
			a.close()
			return err
		}
		r, err := routes.SetupRouter(a.cfg, a.db, routes.Deps{Accounts: a.accounts, Cache: a.cache})
		if err != nil {
			a.close()
			return err
		}

		utils.Sugar.Infof("starting server on port %s (profile %s)", a.cfg.AppPort, a.cfg.Profile)
		return utils.GraceServer(":"+a.cfg.AppPort, r, a.close)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
