package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/census-resolver/internal/cache"
	"github.com/census-resolver/internal/config"
	"github.com/census-resolver/internal/db"
	import_pkg "github.com/census-resolver/internal/import"
	"github.com/census-resolver/internal/resolver"
	"github.com/census-resolver/internal/snapshot"
	"github.com/census-resolver/internal/store"
)

var (
	// Global database connection, opened on first use so commands
	// that never touch Postgres run without a server.
	dbConn *db.Connection
)

// requireDB connects to Postgres once and reuses the connection.
func requireDB() *sql.DB {
	if dbConn == nil {
		var err error
		dbConn, err = db.NewConnection()
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
	}
	return dbConn.DB
}

func main() {
	config.LoadEnv()
	defer func() {
		if dbConn != nil {
			dbConn.Close()
		}
	}()

	rootCmd := &cobra.Command{
		Use:   "resolver",
		Short: "Census reference resolution system",
		Long:  `Resolves free-text queries to canonical geographies, summary levels and statistical data tables`,
	}

	rootCmd.AddCommand(createPingCmd())
	rootCmd.AddCommand(createInitCmd())
	rootCmd.AddCommand(createImportCmd())
	rootCmd.AddCommand(createSnapshotCmd())
	rootCmd.AddCommand(createSearchCmd())
	rootCmd.AddCommand(createCacheCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// createPingCmd creates a command to test database connectivity
func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			st := store.NewPostgresStore(requireDB())
			fmt.Println("Database connection successful!")

			counts, err := st.Counts(context.Background())
			if err != nil {
				log.Fatalf("Error counting reference tables: %v", err)
			}
			for _, table := range []string{"summary_levels", "geographies", "data_tables", "datasets", "table_datasets", "api_cache"} {
				fmt.Printf("%-16s %d\n", table, counts[table])
			}
		},
	}
}

// createInitCmd creates the schema bootstrap command
func createInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create reference and cache tables",
		Run: func(cmd *cobra.Command, args []string) {
			st := store.NewPostgresStore(requireDB())
			if err := st.EnsureSchema(context.Background()); err != nil {
				log.Fatalf("Failed to create schema: %v", err)
			}
			fmt.Println("Schema ready")
		},
	}
}

// createImportCmd creates the import subcommand
func createImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import reference data",
		Long:  `Import CSV exports of summary levels, geographies, data tables and dataset joins`,
	}

	importCmd.AddCommand(&cobra.Command{
		Use:   "summary-levels [filename]",
		Short: "Import summary levels CSV",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			importer := import_pkg.NewCSVImporter(requireDB())
			if err := importer.ImportSummaryLevels(args[0]); err != nil {
				log.Fatalf("Failed to import summary levels: %v", err)
			}
		},
	})

	importCmd.AddCommand(&cobra.Command{
		Use:   "geographies [filename]",
		Short: "Import geographies gazetteer CSV",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			importer := import_pkg.NewCSVImporter(requireDB())
			importer.SetWorkers(config.GetEnvInt("IMPORT_WORKERS", 4))
			if err := importer.ImportGeographies(args[0]); err != nil {
				log.Fatalf("Failed to import geographies: %v", err)
			}
		},
	})

	importCmd.AddCommand(&cobra.Command{
		Use:   "tables [filename]",
		Short: "Import data tables CSV",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			importer := import_pkg.NewCSVImporter(requireDB())
			if err := importer.ImportDataTables(args[0]); err != nil {
				log.Fatalf("Failed to import data tables: %v", err)
			}
		},
	})

	importCmd.AddCommand(&cobra.Command{
		Use:   "table-datasets [filename]",
		Short: "Import table-dataset join CSV",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			importer := import_pkg.NewCSVImporter(requireDB())
			if err := importer.ImportTableDatasets(args[0]); err != nil {
				log.Fatalf("Failed to import table datasets: %v", err)
			}
		},
	})

	return importCmd
}

// createSnapshotCmd creates the snapshot subcommand
func createSnapshotCmd() *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Build and verify embedded SQLite snapshots",
	}

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "build [path]",
		Short: "Export the reference data to a SQLite snapshot",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := snapshot.Build(context.Background(), requireDB(), args[0]); err != nil {
				log.Fatalf("Failed to build snapshot: %v", err)
			}
			fmt.Printf("Snapshot written to %s\n", args[0])
		},
	})

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "verify [path]",
		Short: "Open a snapshot read-only and report table counts",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			counts, err := snapshot.Verify(context.Background(), args[0])
			if err != nil {
				log.Fatalf("Snapshot verification failed: %v", err)
			}
			for table, n := range counts {
				fmt.Printf("%-16s %d\n", table, n)
			}
		},
	})

	return snapshotCmd
}

// createSearchCmd creates one-shot search commands for debugging
func createSearchCmd() *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Run a resolution query against the store",
	}

	var limit int
	var level string

	levelsCmd := &cobra.Command{
		Use:   "levels [query]",
		Short: "Search summary levels",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			r := resolver.NewSummaryLevelResolver(store.NewPostgresStore(requireDB()))
			matches, err := r.Search(context.Background(), args[0], limit)
			if err != nil {
				log.Fatalf("Search failed: %v", err)
			}
			for _, m := range matches {
				fmt.Printf("%s  %s\n", m.Code, m.Name)
			}
		},
	}

	geoCmd := &cobra.Command{
		Use:   "geographies [query]",
		Short: "Search geographies",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			r := resolver.NewGeographyResolver(store.NewPostgresStore(requireDB()))
			var (
				matches []store.GeographyMatch
				err     error
			)
			if level != "" {
				matches, err = r.SearchWithinLevel(context.Background(), args[0], level, limit)
			} else {
				matches, err = r.Search(context.Background(), args[0], limit)
			}
			if err != nil {
				log.Fatalf("Search failed: %v", err)
			}
			for _, m := range matches {
				fmt.Printf("%.3f  %s (%s)\n", m.Score, m.Name, m.SummaryLevelName)
			}
		},
	}
	geoCmd.Flags().StringVar(&level, "level", "", "restrict to one summary level code")

	tablesCmd := &cobra.Command{
		Use:   "tables [label query]",
		Short: "Search data tables",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			idPrefix, _ := cmd.Flags().GetString("id")
			dataset, _ := cmd.Flags().GetString("dataset")
			labelQuery := ""
			if len(args) > 0 {
				labelQuery = args[0]
			}

			r := resolver.NewDataTableResolver(store.NewPostgresStore(requireDB()))
			results, err := r.Search(context.Background(), resolver.TableQuery{
				IDPrefix:     idPrefix,
				LabelQuery:   labelQuery,
				DatasetScope: dataset,
				Limit:        limit,
			})
			if err != nil {
				log.Fatalf("Search failed: %v", err)
			}
			for _, t := range results {
				fmt.Printf("%s  %s (%d datasets)\n", t.TableID, t.Label, len(t.Datasets))
			}
		},
	}
	tablesCmd.Flags().String("id", "", "table id prefix")
	tablesCmd.Flags().String("dataset", "", "dataset scope")

	searchCmd.PersistentFlags().IntVar(&limit, "limit", 0, "maximum results")
	searchCmd.AddCommand(levelsCmd)
	searchCmd.AddCommand(geoCmd)
	searchCmd.AddCommand(tablesCmd)
	return searchCmd
}

// createCacheCmd creates cache maintenance commands
func createCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Query-result cache maintenance",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete expired cache entries",
		Run: func(cmd *cobra.Command, args []string) {
			c := cache.New(store.NewPostgresStore(requireDB()))
			n, err := c.Sweep(context.Background())
			if err != nil {
				log.Fatalf("Sweep failed: %v", err)
			}
			fmt.Printf("Removed %d expired entries\n", n)
		},
	})

	return cacheCmd
}
