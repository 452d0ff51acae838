package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/formocr/internal/batch"
	"github.com/MeKo-Tech/formocr/internal/benchmark"
	"github.com/MeKo-Tech/formocr/internal/config"
)

var benchCmd = &cobra.Command{
	Use:   "bench <dirs|files...>",
	Short: "Measure extraction latency",
	Long: `Run the extraction pipeline repeatedly over a set of images and report
latency percentiles with the detection and OCR share of each document.

With --compare-gpu the run is repeated with the detector on CUDA.

Examples:
  formocr bench form.png --iterations 10
  formocr bench scans/ --warmup 2 --compare-gpu`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBenchCommand,
}

func runBenchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	iterations, _ := cmd.Flags().GetInt("iterations")
	warmup, _ := cmd.Flags().GetInt("warmup")
	compareGPU, _ := cmd.Flags().GetBool("compare-gpu")

	files, err := batch.DiscoverImageFiles(args, cfg.Batch.Recursive, nil, nil)
	if err != nil {
		return err
	}
	opts := benchmark.Options{Iterations: iterations, Warmup: warmup}

	cpuCfg := *cfg
	cpuCfg.GPU.Enabled = false
	cpu, err := runBench(cmd, "CPU", &cpuCfg, files, opts)
	if err != nil {
		return err
	}
	cpu.Write(cmd.OutOrStdout())
	if !compareGPU {
		return nil
	}

	gpuCfg := *cfg
	gpuCfg.GPU.Enabled = true
	gpu, err := runBench(cmd, "GPU", &gpuCfg, files, opts)
	if err != nil {
		return err
	}
	cmp := benchmark.Comparison{CPU: cpu}
	if !allFailed(gpu) {
		gpu.Write(cmd.OutOrStdout())
		cmp.GPU = gpu
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", cmp)
	return nil
}

func runBench(cmd *cobra.Command, name string, cfg *config.Config, files []string, opts benchmark.Options) (*benchmark.Report, error) {
	p, err := newPipeline(cfg)
	if err != nil {
		return nil, err
	}
	defer closePipeline(p)

	rep, err := benchmark.Run(cmd.Context(), name, p, files, opts)
	if err != nil {
		return nil, fmt.Errorf("%s benchmark failed: %w", name, err)
	}
	return rep, nil
}

func allFailed(rep *benchmark.Report) bool {
	for _, f := range rep.Files {
		if f.Failures < f.Iterations {
			return false
		}
	}
	return true
}

var errNoIterations = errors.New("--iterations must be at least 1")

func init() {
	rootCmd.AddCommand(benchCmd)
	addDetectorFlags(benchCmd)
	benchCmd.Flags().Int("iterations", 5, "measured runs per document")
	benchCmd.Flags().Int("warmup", 1, "unmeasured runs per document before measuring")
	benchCmd.Flags().Bool("compare-gpu", false, "repeat the run with the detector on CUDA")
	benchCmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if n, _ := cmd.Flags().GetInt("iterations"); n < 1 {
			return errNoIterations
		}
		return nil
	}
}
