package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

var (
	samplesDelete string
	samplesPurge  bool
)

func samplesCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runSamples,
		UsageLine: "samples [-delete label] [-purge]",
		Short:     "lists sample counts per sign, or deletes samples",
		Flag:      *flag.NewFlagSet("samples", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	cmd.Flag.StringVar(&samplesDelete, "delete", "", "Delete all samples of this label")
	cmd.Flag.BoolVar(&samplesPurge, "purge", false, "Delete every sample")
	return cmd
}

func runSamples(cmd *commander.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	repo := st.Samples()
	switch {
	case samplesPurge:
		n, err := repo.DeleteAll()
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d samples\n", n)
		return nil
	case samplesDelete != "":
		n, err := repo.DeleteLabel(samplesDelete)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d samples of %q\n", n, samplesDelete)
		return nil
	}

	counts, err := repo.Counts()
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Println("No samples collected")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tSAMPLES")
	total := 0
	for _, c := range counts {
		fmt.Fprintf(w, "%s\t%d\n", c.Label, c.Count)
		total += c.Count
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	return w.Flush()
}
