package main

import (
	"fmt"
	"os"

	"github.com/mfenderov/patent-novelty/cmd/novelty/cmd"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if kind := models.ErrorKind(err); kind != models.KindInternal {
			fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", kind, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
