package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"

	"github.com/ayusman/signify/internal/classifier"
)

func modelsCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runModels,
		UsageLine: "models",
		Short:     "lists trained model versions",
		Flag:      *flag.NewFlagSet("models", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	return cmd
}

func runModels(cmd *commander.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	versions, err := st.Models().List()
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Println("No models trained")
		return nil
	}

	current, err := classifier.NewModelDir(cfg.Classifier.ModelDir).Current()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tVERSION\tCREATED\tSAMPLES\tSIGNS\tK")
	for _, v := range versions {
		mark := ""
		if v.Version == current {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n", mark, v.Version,
			v.CreatedAt.Local().Format("2006-01-02 15:04"), v.Samples, v.Labels, v.K)
	}
	return w.Flush()
}
