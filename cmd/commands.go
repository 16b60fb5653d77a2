package main

import (
	"cable"
	"cable/config"
	"cable/load"
	"cable/mech"
	"cable/morph"
	"cable/solver/debug"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// app 命令共享的状态
type app struct {
	logLevel  string
	logFormat string
	logger    *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "cable",
		Short:        "神经元舱室模型仿真",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			lc := config.LogConfig{Level: a.logLevel, Format: a.logFormat}
			a.logger = lc.Logger(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "日志级别 debug|info|warn|error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "日志格式 text|json")
	root.AddCommand(a.runCmd(), a.inspectCmd(), a.mechsCmd())
	return root
}

func (a *app) runCmd() *cobra.Command {
	var (
		cfgPath string
		output  string
		serve   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "按配置文件仿真并输出记录",
		Long: `读取 YAML 配置，构建神经元并求解电压。

输出格式由文件扩展名决定: .json .html .png .svg .pdf
指定 --serve 时在该地址发布网页，直到收到中断信号。

示例:
  cable run -c sim.yaml -o trace.html
  cable run -c sim.yaml --serve :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := a.logger
			if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-format") {
				logger = cfg.Log.Logger(cmd.ErrOrStderr())
			}
			if output != "" {
				cfg.Output.Path = output
			}
			if serve != "" {
				cfg.Output.Serve = serve
			}
			return simulate(cmd.Context(), cmd, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "配置文件")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件，覆盖配置")
	cmd.Flags().StringVar(&serve, "serve", "", "网页发布地址，覆盖配置")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func simulate(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	cell, err := cfg.Build(logger)
	if err != nil {
		return err
	}
	opt, err := cfg.SolverOptions(logger)
	if err != nil {
		return err
	}
	res, err := cell.Integrate(ctx, opt)
	if res == nil {
		return err
	}
	rec := debug.NewRecord(cell.Topology(), res)
	// 中途失败时仍然输出已完成的部分
	if cfg.Output.Path != "" {
		if xerr := debug.Export(cfg.Output.Path, rec); xerr != nil {
			return errors.Join(err, xerr)
		}
		logger.Info("结果已输出", "path", cfg.Output.Path)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "仿真 %s: %d 步, %d 条记录\n", res.RunID, res.Steps, len(res.Traces))
	if cfg.Output.Serve == "" {
		return nil
	}
	return serveCharts(ctx, cfg.Output.Serve, &debug.Charts{Record: rec}, logger)
}

// serveCharts 发布网页直到 ctx 结束
func serveCharts(ctx context.Context, addr string, c *debug.Charts, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.Handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("网页已发布", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

func (a *app) inspectCmd() *cobra.Command {
	var (
		sortKey string
		policy  string
		maxLen  float64
	)
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "输出 SWC 形态的分支统计",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt := cable.DefaultOptions()
			opt.Logger = a.logger
			key, err := morph.ParseSortKey(sortKey)
			if err != nil {
				return err
			}
			rp, err := load.ParseRootPolicy(policy)
			if err != nil {
				return err
			}
			opt.Partition.Sort = key
			opt.Partition.MaxBranchLen = maxLen
			opt.Trace.RootPolicy = rp
			m, err := cable.DiscretizeFile(args[0], opt)
			if err != nil {
				return err
			}
			printMorphology(cmd, m)
			return nil
		},
	}
	cmd.Flags().StringVar(&sortKey, "sort", morph.SortFirstSample.String(), "分支排序 first-sample|none|type|length")
	cmd.Flags().StringVar(&policy, "root-policy", load.RootFirstSoma.String(), "多根策略 first-soma|first-record|strict")
	cmd.Flags().Float64Var(&maxLen, "max-branch-len", 0, "分支最大长度(um)，0 不限制")
	return cmd
}

func printMorphology(cmd *cobra.Command, m *cable.Morphology) {
	s := m.Summary()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "追踪点: %d, 分支: %d, 总长: %.3f um\n", m.Trace.Len(), s.Branches, s.Length)
	for _, name := range slices.Sorted(maps.Keys(s.Count)) {
		fmt.Fprintf(out, "  %-10s %4d 个分支 %10.3f um\n", name, s.Count[name], s.Lengths[name])
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "分支\t父分支\t类型\t类别\t采样点\t长度")
	for i, b := range m.Branches {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%.3f\n", i, b.Parent, b.Type, b.Kind, len(b.Samples), b.Length)
	}
	w.Flush()
}

func (a *app) mechsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mechs",
		Short: "列出可用的通道与突触",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "机制\t类别\t参数\t状态")
			for _, kind := range mech.Kinds() {
				m, err := mech.New(kind, "")
				if err != nil {
					return err
				}
				class := "通道"
				if _, ok := m.(mech.Synapse); ok {
					class = "突触"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kind, class, varNames(m.Params()), varNames(m.States()))
			}
			return w.Flush()
		},
	}
}

func varNames(vars []mech.Var) string {
	if len(vars) == 0 {
		return "-"
	}
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = fmt.Sprintf("%s=%g", v.Name, v.Value)
	}
	return strings.Join(names, ",")
}
