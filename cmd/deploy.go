package cmd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/utils"
)

var (
	fakeUsers int
	fakePosts int
	withFake  bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Migrate the schema, insert roles and repair self-follows",
	Long: `deploy brings a database up to date. It is safe to run on every release:
the schema is auto-migrated, the canonical roles are inserted or reset, and every
user gets the self-follow edge. With --fake it also generates sample data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		err = a.db.Transaction(func(tx *gorm.DB) error {
			if err := models.InsertRoles(tx); err != nil {
				return fmt.Errorf("insert roles: %w", err)
			}
			return models.AddSelfFollows(tx)
		})
		if err != nil {
			return err
		}
		utils.Sugar.Infow("deploy finished", "roles", models.CanonicalRoleNames())
		if withFake {
			return generateFake(a.db, fakeUsers, fakePosts)
		}
		return nil
	},
}

var fakeCmd = &cobra.Command{
	Use:   "fake",
	Short: "Generate fake users and posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()
		if err := models.InsertRoles(a.db); err != nil {
			return err
		}
		return generateFake(a.db, fakeUsers, fakePosts)
	},
}

func generateFake(db *gorm.DB, users, posts int) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return db.Transaction(func(tx *gorm.DB) error {
		nu, err := models.GenerateFakeUsers(tx, users, rng)
		if err != nil {
			return err
		}
		np, err := models.GenerateFakePosts(tx, posts, rng)
		if err != nil {
			return err
		}
		utils.Sugar.Infow("fake data generated", "users", nu, "posts", np)
		return nil
	})
}

func init() {
	for _, c := range []*cobra.Command{deployCmd, fakeCmd} {
		c.Flags().IntVar(&fakeUsers, "users", 100, "number of fake users")
		c.Flags().IntVar(&fakePosts, "posts", 100, "number of fake posts")
		rootCmd.AddCommand(c)
	}
	deployCmd.Flags().BoolVar(&withFake, "fake", false, "also generate fake users and posts")
}
