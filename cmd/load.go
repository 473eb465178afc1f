package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"askhc/src/config"
	"askhc/src/core/document"
)

var loadCmd = &cobra.Command{
	Use:   "load [dir]",
	Short: "Rebuild the vector store from the documents directory",
	Long: `The load command clears the vector store and indexes every supported
document again. The optional dir argument overrides data.documents_dir.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		if cfg.Storage.Driver != config.StorageLocal {
			return fmt.Errorf("a directory argument needs storage.driver=%s", config.StorageLocal)
		}
		cfg.Data.DocumentsDir = args[0]
	}

	ctx := cmd.Context()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	files, err := a.files.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	total := 0
	for _, f := range files {
		if document.IsSupported(f.Name) {
			total++
		}
	}
	if total == 0 {
		fmt.Println("No supported documents found")
		return nil
	}

	if _, err := a.docs.Clear(ctx); err != nil {
		return err
	}

	bar := progressbar.Default(int64(total), "indexing")
	res, err := a.docs.LoadDirectory(ctx, func(string) {
		bar.Add(1)
	})
	bar.Finish()
	if err != nil {
		return err
	}

	vectors, err := a.docs.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d files (%d failed), %d chunks, %d vectors in store\n",
		res.Files, res.Failed, res.TotalChunks, vectors)
	return nil
}
