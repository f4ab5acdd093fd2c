// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mapsheets/mapsheets/internal/annotations"
)

// annotationFlags are shared between the annotations subcommands.
type annotationFlags struct {
	files     []string
	delimiter string
	idCol     string
	pathCol   string
	labelCol  string
	imagesDir string
	broken    string
}

func (a *annotationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&a.files, "annotations", "a", nil, "annotations csv file (repeatable, later files appended)")
	cmd.Flags().StringVar(&a.delimiter, "delimiter", ",", "column delimiter")
	cmd.Flags().StringVar(&a.idCol, "id-col", "image_id", "unique patch id column")
	cmd.Flags().StringVar(&a.pathCol, "path-col", "image_path", "patch image path column")
	cmd.Flags().StringVar(&a.labelCol, "label-col", "label", "label column")
	cmd.Flags().StringVar(&a.imagesDir, "images-dir", "", "rebase image file names onto this directory")
	cmd.Flags().StringVar(&a.broken, "broken", string(annotations.BrokenRemove), "missing image handling (remove|error|ignore)")
	_ = cmd.MarkFlagRequired("annotations")
}

func (a *annotationFlags) load() (*annotations.Set, error) {
	policy := annotations.BrokenPolicy(a.broken)
	if !policy.IsValid() {
		return nil, fmt.Errorf("invalid --broken policy %q", a.broken)
	}
	delim := []rune(a.delimiter)
	if len(delim) != 1 {
		return nil, fmt.Errorf("--delimiter must be a single character")
	}

	set, err := annotations.Load(a.files[0], annotations.Options{
		Delimiter: delim[0],
		IDCol:     a.idCol,
		PathCol:   a.pathCol,
		LabelCol:  a.labelCol,
		ImagesDir: a.imagesDir,
		Broken:    policy,
	})
	if err != nil {
		return nil, err
	}
	for _, extra := range a.files[1:] {
		if err := set.Append(extra); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func newAnnotationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotations",
		Short: "Inspect and split patch annotation datasets",
	}
	cmd.AddCommand(newAnnotationsInfoCmd(), newAnnotationsSplitCmd())
	return cmd
}

func newAnnotationsInfoCmd() *cobra.Command {
	var a annotationFlags
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print label counts for an annotations file",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.load()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			counts := set.Counts()
			for i, label := range set.Labels() {
				fmt.Fprintf(w, "%d\t%s\t%d\n", i, label, counts[label])
			}
			fmt.Fprintf(w, "%d record(s), %d label(s)\n", set.Len(), len(set.Labels()))
			return nil
		},
	}
	a.register(cmd)
	return cmd
}

func newAnnotationsSplitCmd() *cobra.Command {
	var (
		a       annotationFlags
		train   float64
		val     float64
		test    float64
		seed    int64
		shuffle bool
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split annotations into stratified train/val/test csv files",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.load()
			if err != nil {
				return err
			}
			if shuffle {
				set.Shuffle(seed)
			}

			sp, err := set.Split(annotations.Fractions{Train: train, Val: val, Test: test}, seed)
			if err != nil {
				return err
			}
			sp.SortByID()

			opts := annotations.Options{IDCol: a.idCol, PathCol: a.pathCol, LabelCol: a.labelCol}
			if err := sp.WriteTrainCSV(filepath.Join(outDir, "train.csv"), opts); err != nil {
				return err
			}
			outputs := map[string][]annotations.Record{
				"val.csv":  sp.Val,
				"test.csv": sp.Test,
			}
			for name, recs := range outputs {
				if len(recs) == 0 {
					continue
				}
				if err := annotations.WriteCSV(filepath.Join(outDir, name), recs, opts); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "train=%d val=%d test=%d\n",
				len(sp.Train), len(sp.Val), len(sp.Test))
			return nil
		},
	}
	a.register(cmd)
	cmd.Flags().Float64Var(&train, "train", 0.7, "training set fraction")
	cmd.Flags().Float64Var(&val, "val", 0.15, "validation set fraction")
	cmd.Flags().Float64Var(&test, "test", 0.15, "test set fraction (may be 0)")
	cmd.Flags().Int64Var(&seed, "seed", annotations.DefaultSeed, "random seed for the split")
	cmd.Flags().BoolVar(&shuffle, "shuffle", false, "shuffle records before splitting")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory for the split csv files")
	return cmd
}

func init() {
	rootCmd.AddCommand(newAnnotationsCmd())
}
