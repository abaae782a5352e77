package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/zephyrpay/relayer/core/backup"
	appconfig "github.com/zephyrpay/relayer/core/config"
	"github.com/zephyrpay/relayer/storage"
)

var backupDir string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Take a one-shot snapshot of the relayer database",
	Long: `Open the database from the config file and write a full backup.

The service must not be running against the same database path.`,
	Run: func(cmd *cobra.Command, args []string) {
		c, err := appconfig.NewConfig(config)
		if err != nil {
			log.Fatalf("failed to parse config file: %v", err)
		}

		db, err := storage.NewWithPath(c.DbPath)
		if err != nil {
			log.Fatalf("cannot open database at %s: %v", c.DbPath, err)
		}
		defer db.Close()

		dir := backupDir
		if dir == "" {
			dir = c.BackupDir
		}
		if dir == "" {
			log.Fatal("no backup directory: set --dir or backup_dir in the config file")
		}

		backupFile, err := backup.NewService(c.Logger, db, dir).PerformBackup()
		if err != nil {
			log.Fatalf("backup failed: %v", err)
		}

		fmt.Printf("backup written to %s\n", backupFile)
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "", "directory to write the backup into (defaults to backup_dir from config)")
	rootCmd.AddCommand(backupCmd)
}
