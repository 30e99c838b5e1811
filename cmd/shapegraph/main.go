// shapegraph builds tensor graphs described in YAML files and prints their inferred shapes.
//
// Usage:
//
//	shapegraph build model.yaml
//	shapegraph check --format=json model.yaml
//	shapegraph ops
package main

import (
	"fmt"
	"os"

	"github.com/gomlx/shapegraph/internal/cli"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	klog.Flush()
	os.Exit(cli.GetExitCode(err))
}
