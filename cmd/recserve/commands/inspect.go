package commands

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/model"
	"github.com/rushteam/recserve/service"
)

type inspectReport struct {
	Health  service.Health `json:"health"`
	Popular *core.Result   `json:"popular,omitempty"`
	User    *core.Result   `json:"user,omitempty"`
}

func NewInspectCmd() *cobra.Command {
	var (
		dir  string
		user int
		n    int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load a model bundle and print its summary",
		Long:  `Load and validate a model bundle without serving it. Prints health, the top popular items and optionally one user's recommendations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var src model.Source
			if dir != "" {
				src = model.NewDirSource(dir)
			} else if src, err = cfg.Model.Open(cmd.Context()); err != nil {
				return err
			}

			svc := service.New(service.Options{
				Source:      src,
				Eligibility: cfg.Ranking.Eligibility,
				Logger:      zerolog.Nop(),
			})
			if err := svc.Reload(cmd.Context()); err != nil {
				return err
			}
			if size := svc.Snapshot().Catalog.Len(); n > size {
				n = size
			}

			report := inspectReport{Health: svc.Health()}
			if report.Popular, err = svc.RecommendPopular(cmd.Context(), n, ""); err != nil {
				return err
			}
			if user >= 0 {
				if report.User, err = svc.RecommendForUser(cmd.Context(), user, n, nil); err != nil {
					return err
				}
			}
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "model directory (overrides model.source)")
	cmd.Flags().IntVar(&user, "user", -1, "also recommend for this user index")
	cmd.Flags().IntVarP(&n, "n", "n", 5, "number of items to show")
	return cmd
}
