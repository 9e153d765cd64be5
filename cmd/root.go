package cmd

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/config"
	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/services"
	"github.com/cppla/bloghub/utils"
)

var profile string

var rootCmd = &cobra.Command{
	Use:   "bloghub",
	Short: "A small blogging and social network server",
	Long: `bloghub serves a blog with followers, comments and moderation, both as HTML pages and
as a JSON API under /api/v1.

The configuration profile is picked with --config or APP_CONFIG.`,
	SilenceUsage: true,
}

// Execute runs the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&profile, "config", "c", "",
		"configuration profile: development, testing, production or hosted")
}

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg      *config.AppConfig
	db       *gorm.DB
	redis    *redis.Client
	mail     *utils.MailDispatcher
	cache    *utils.Cache
	accounts *services.AccountService
}

func bootstrap() (*app, error) {
	cfg, err := config.Load(profile)
	if err != nil {
		return nil, err
	}
	if err := utils.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	utils.SetPasswordCost(cfg.PasswordCost)
	mail := utils.NewMailDispatcher(utils.NewSMTPMailer(cfg), cfg.MailSubjectPrefix)
	if cfg.IsProduction() {
		utils.MailErrorsTo(mail, cfg.AdminEmail)
	}

	db, err := config.InitDatabase(cfg, utils.Logger, models.All()...)
	if err != nil {
		return nil, err
	}

	rc := utils.NewRedis(cfg)
	accounts := services.NewAccountService(cfg, utils.NewTokenService(cfg.SecretKey), mail)
	accounts.UseBlacklist(utils.NewTokenBlacklist(rc))
	return &app{
		cfg:      cfg,
		db:       db,
		redis:    rc,
		mail:     mail,
		cache:    utils.NewCache(rc, cfg.CacheTTL),
		accounts: accounts,
	}, nil
}

// close waits for queued mail and releases connections.
func (a *app) close() {
	a.mail.Wait()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = utils.Logger.Sync()
}
