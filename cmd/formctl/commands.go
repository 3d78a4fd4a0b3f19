package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"example.com/formcoach/internal/bootstrap"
	"example.com/formcoach/internal/config"
	"example.com/formcoach/internal/domain"
	"example.com/formcoach/internal/observability"
	"example.com/formcoach/internal/persistence"
)

// recordView is the CLI rendering of a stored analysis.
type recordView struct {
	ID string `json:"id"`
	domain.AnalysisResult
	VideoPath    string `json:"videoPath"`
	OriginalName string `json:"originalName"`
	Outcome      string `json:"analysisOutcome"`
	CreatedAt    string `json:"createdAt"`
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "formctl",
		Short:        "Operate the form-coach analysis pipeline from a terminal",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newAnalyzeCmd(), newRecentCmd(), newChatCmd(), newMigrateCmd())
	return rootCmd
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <video>",
		Short: "Run one analysis job against the configured store and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if info, err := os.Stat(path); err != nil {
				return fmt.Errorf("video %s: %w", args[0], err)
			} else if info.IsDir() {
				return fmt.Errorf("video %s is a directory", args[0])
			}

			return withService(cmd, func(ctx context.Context, service *domain.Service) error {
				record, err := service.RunJob(ctx, path, filepath.Base(path))
				if err != nil {
					_ = printJSON(cmd.ErrOrStderr(), record.AnalysisResult)
					return err
				}
				return printJSON(cmd.OutOrStdout(), toRecordView(record))
			})
		},
	}
}

func newRecentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recent analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, service *domain.Service) error {
				records, err := service.ListRecent(ctx, limit)
				if err != nil {
					return err
				}
				views := make([]recordView, 0, len(records))
				for _, record := range records {
					views = append(views, toRecordView(record))
				}
				return printJSON(cmd.OutOrStdout(), views)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", domain.DefaultRecentLimit, "Number of analyses to print")
	return cmd
}

func newChatCmd() *cobra.Command {
	var contextLatest bool
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the coach a question, optionally about the latest analysis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, service *domain.Service) error {
				turn := domain.ChatTurn{Message: strings.Join(args, " ")}
				if contextLatest {
					latest, err := service.Latest(ctx)
					if err != nil {
						return err
					}
					if latest != nil {
						result := latest.AnalysisResult
						turn.AnalysisContext = &result
					}
				}

				reply, err := service.Chat(ctx, turn)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&contextLatest, "context-latest", false, "Include the most recent analysis as context")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return persistence.RunMigrations(cfg.PostgresURL, logger)
		},
	}
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logger := observability.Component(observability.NewLogger(cfg.LogLevel, cfg.LogPretty), "formctl")
	return cfg, logger, nil
}

func withService(cmd *cobra.Command, fn func(context.Context, *domain.Service) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := bootstrap.NewService(cfg, store, logger)
	if err != nil {
		return err
	}
	return fn(ctx, service)
}

func toRecordView(record domain.WorkoutAnalysisRecord) recordView {
	return recordView{
		ID:             record.ID,
		AnalysisResult: record.AnalysisResult,
		VideoPath:      record.VideoPath,
		OriginalName:   record.OriginalName,
		Outcome:        string(record.Outcome),
		CreatedAt:      record.CreatedAt.Format(time.RFC3339Nano),
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
