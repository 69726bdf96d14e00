package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"messageboard/board"
	"messageboard/config"
	"messageboard/kafka"
	"messageboard/logger"
	"messageboard/models"
	"messageboard/store"
)

// withStore opens the configured store for the duration of fn.
func withStore(ctx context.Context, cfg config.Config, fn func(store.Repository) error) error {
	repo, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(ctx); err != nil {
			logger.Error("close store", err)
		}
	}()
	return fn(repo)
}

func newPostCommand(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "post <text>",
		Short: "Create a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			text := strings.Join(args, " ")
			return withStore(cmd.Context(), c, func(repo store.Repository) error {
				var opts []board.Option
				if c.KafkaEnabled() {
					p := kafka.NewProducer(c.KafkaBrokers, c.KafkaTopic, "cli-"+uuid.NewString())
					defer p.Close()
					opts = append(opts, board.WithPublisher(p))
				}
				msg, err := board.NewService(repo, c.MaxMessageLength, opts...).Create(cmd.Context(), text)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
				return nil
			})
		},
	}
}

func newListCommand(cfg func() config.Config) *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "list",
		Short: "Print stored messages, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), cfg(), func(repo store.Repository) error {
				msgs, err := repo.GetRecentMessages(cmd.Context(), limit)
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"ID", "Created", "Text"})
				table.SetAutoWrapText(false)
				table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
				table.SetAlignment(tablewriter.ALIGN_LEFT)
				table.AppendBulk(lo.Map(msgs, func(m models.Message, _ int) []string {
					return []string{m.ID, m.CreatedAt.Format(time.RFC3339), m.Text}
				}))
				table.SetFooter([]string{"", "total", strconv.Itoa(len(msgs))})
				table.Render()
				return nil
			})
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 0, "show only the newest N messages (0 = all)")
	return c
}

func newDeleteCommand(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete messages by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), cfg(), func(repo store.Repository) error {
				for _, id := range args {
					if err := repo.DeleteMessage(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
				}
				return nil
			})
		},
	}
}

func newMigrateCommand(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and indexes for the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// store.Open migrates on the way in.
			return withStore(cmd.Context(), cfg(), func(store.Repository) error {
				logger.Info("store migrated", logger.FieldKV("driver", cfg().StoreDriver))
				return nil
			})
		},
	}
}
