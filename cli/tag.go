package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adokit/adokit/gittag"
)

func newTagCmd(flags *rootFlags) *cobra.Command {
	var prefix string
	var build int
	var message string
	var dir string
	var force bool

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Tag HEAD with a semantic version and push the tag",
		Example: `  adokit tag --prefix 1.4 --build 123
  adokit tag --prefix 1.4 --build 123 --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(flags.verbose)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			tagger := gittag.NewTagger(dir, logger)
			tag, err := tagger.TagBuild(cmd.Context(), prefix, build, message, force)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tag)
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "MAJOR.MINOR version prefix")
	cmd.Flags().IntVar(&build, "build", -1, "build counter, becomes the patch component")
	cmd.Flags().StringVar(&message, "message", "", "annotation message")
	cmd.Flags().StringVar(&dir, "dir", ".", "repository directory")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing tag")
	_ = cmd.MarkFlagRequired("prefix")
	_ = cmd.MarkFlagRequired("build")

	return cmd
}
