package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type client struct {
	baseURL    string
	httpClient *http.Client
}

type taskResp struct {
	ID               string            `json:"id"`
	Type             string            `json:"type"`
	Status           string            `json:"status"`
	Progress         int               `json:"progress"`
	StageIndex       int               `json:"stageIndex"`
	CurrentStage     string            `json:"currentStage"`
	OriginalFilename string            `json:"originalFilename"`
	ErrorMessage     string            `json:"errorMessage"`
	ResultRefs       map[string]string `json:"resultRefs"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

type listResp struct {
	Tasks  []taskResp `json:"tasks"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type statsResp struct {
	TotalTasks      int `json:"totalTasks"`
	PendingTasks    int `json:"pendingTasks"`
	ProcessingTasks int `json:"processingTasks"`
	CompletedTasks  int `json:"completedTasks"`
	FailedTasks     int `json:"failedTasks"`
	QueueDepth      int `json:"queueDepth"`
	Workers         int `json:"workers"`
}

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

type profile struct {
	BaseURL   string `yaml:"baseUrl"`
	OutputDir string `yaml:"outputDir"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func (c *client) request(method, path string, body any) (int, []byte, error) {
	var buf *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func (c *client) upload(path, taskType, filePath string) (int, []byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("type", taskType); err != nil {
		return 0, nil, err
	}
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return 0, nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return 0, nil, err
	}
	if err := w.Close(); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func (c *client) download(path string, dst io.Writer) (int, string, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		out, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(out), nil
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

func main() {
	baseURL := getenv("DIAGRAMQ_BASE_URL", "http://localhost:8080")
	profileName := getenv("DIAGRAMQ_PROFILE", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "diagramq",
		Short: "diagramQ CLI",
		Long:  "diagramQ CLI for submitting UML diagrams and tracking analysis tasks.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Base URL for diagramQ")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") {
			if v := strings.TrimSpace(os.Getenv("DIAGRAMQ_BASE_URL")); v != "" {
				baseURL = v
			} else if prof.BaseURL != "" {
				baseURL = prof.BaseURL
			}
		}
		if !flags.Changed("profile") && profileName == "" && active != "" {
			profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(taskCmd(&baseURL, &profileName, ui))
	root.AddCommand(statsCmd(&baseURL, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		baseURL   string
		outputDir string
		noPrompt  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = prof.BaseURL
			}
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}
			if outputDir == "" {
				outputDir = prof.OutputDir
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				outputDir = prompt(reader, "Artifact output directory (optional)", outputDir)
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			prof.OutputDir = strings.TrimSpace(outputDir)

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}

			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for diagramQ")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Default directory for fetched artifacts")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func taskCmd(baseURL, profileName *string, ui *ui) *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Task operations",
	}

	var (
		taskType string
		watch    bool
	)

	submit := &cobra.Command{
		Use:     "submit <file>",
		Short:   "Submit a diagram for analysis",
		Example: "diagramq task submit class-diagram.png\n  diagramq task submit model.mdj --type diagram-file --watch",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			t := strings.TrimSpace(taskType)
			if t == "" {
				t = inferTaskType(filePath)
			}
			if t == "" {
				return errors.New("cannot infer task type from extension, pass --type image|diagram-file")
			}

			c := newClient(*baseURL)
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Uploading diagram..."
			spin.Start()
			status, resp, err := c.upload("/v1/tasks", t, filePath)
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out taskResp
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s Task submitted: %s (%s)\n", ui.ok("[OK]"), out.ID, out.Type)
			if watch {
				return watchTask(cmd.Context(), c, out.ID, ui)
			}
			return nil
		},
	}
	submit.Flags().StringVar(&taskType, "type", "", "Task type: image|diagram-file (inferred from extension when empty)")
	submit.Flags().BoolVar(&watch, "watch", false, "Watch progress until the task finishes")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL)
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Fetching task..."
			spin.Start()
			status, resp, err := c.request("GET", "/v1/tasks/"+url.PathEscape(args[0]), nil)
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			fmt.Println(string(resp))
			return nil
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Watch a task until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return watchTask(ctx, newClient(*baseURL), args[0], ui)
		},
	}

	var (
		listStatus string
		listLimit  int
		listOffset int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL)
			q := url.Values{}
			if listStatus != "" {
				q.Set("status", listStatus)
			}
			q.Set("limit", fmt.Sprint(listLimit))
			q.Set("offset", fmt.Sprint(listOffset))

			status, resp, err := c.request("GET", "/v1/tasks?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out listResp
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			printTaskTable(out, ui)
			return nil
		},
	}
	list.Flags().StringVar(&listStatus, "status", "", "Filter by status: pending|processing|completed|failed")
	list.Flags().IntVar(&listLimit, "limit", 50, "Page size")
	list.Flags().IntVar(&listOffset, "offset", 0, "Page offset")

	var fetchOut string
	fetch := &cobra.Command{
		Use:     "fetch <id> <kind>",
		Short:   "Download a task artifact",
		Example: "diagramq task fetch 4f1f9c annotated_image -o annotated.png",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, kind := args[0], args[1]
			dst := fetchOut
			if dst == "" {
				cfg, _, _ := loadConfig()
				prof := cfg.Profiles[resolveProfileName(*profileName, cfg)]
				dst = filepath.Join(prof.OutputDir, id+"-"+kind+extForKind(kind))
			}
			if dir := filepath.Dir(dst); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			f, err := os.Create(dst)
			if err != nil {
				return err
			}
			defer f.Close()

			c := newClient(*baseURL)
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Downloading artifact..."
			spin.Start()
			status, detail, err := c.download("/v1/tasks/"+url.PathEscape(id)+"/files/"+url.PathEscape(kind), f)
			spin.Stop()
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				_ = os.Remove(dst)
				if status == http.StatusConflict {
					return fmt.Errorf("artifact '%s' not ready yet", kind)
				}
				return fmt.Errorf("error (%d): %s", status, detail)
			}
			fmt.Printf("%s Saved %s (%s) to %s\n", ui.ok("[OK]"), kind, detail, dst)
			return nil
		},
	}
	fetch.Flags().StringVarP(&fetchOut, "output", "o", "", "Output file path")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL)
			status, resp, err := c.request("DELETE", "/v1/tasks/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			switch status {
			case http.StatusOK:
				fmt.Printf("%s Task deleted\n", ui.ok("[OK]"))
			case http.StatusAccepted:
				fmt.Printf("%s Task is processing, deletion scheduled\n", ui.warn("[WARN]"))
			default:
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			return nil
		},
	}

	task.AddCommand(submit, get, watchCmd, list, fetch, del)
	return task
}

func statsCmd(baseURL *string, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show engine statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL)
			status, resp, err := c.request("GET", "/v1/stats", nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out statsResp
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s: %d | %s: %d | %s: %d | %s: %d | %s: %d\n",
				ui.dim("TOTAL"), out.TotalTasks,
				ui.warn("PENDING"), out.PendingTasks,
				ui.info("PROCESSING"), out.ProcessingTasks,
				ui.ok("COMPLETED"), out.CompletedTasks,
				ui.err("FAILED"), out.FailedTasks,
			)
			fmt.Printf("queue depth: %d | workers: %d\n", out.QueueDepth, out.Workers)
			return nil
		},
	}
}

func watchTask(ctx context.Context, c *client, id string, ui *ui) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionSetWidth(18),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	var last taskResp
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Println(ui.warn("[WARN]"), "Stopped watching, task keeps running server-side")
			return nil
		case <-time.After(500 * time.Millisecond):
		}
		status, resp, err := c.request("GET", "/v1/tasks/"+url.PathEscape(id), nil)
		if err != nil {
			continue
		}
		if status >= 300 {
			return fmt.Errorf("error (%d): %s", status, string(resp))
		}
		if err := json.Unmarshal(resp, &last); err != nil {
			continue
		}
		_ = bar.Set(last.Progress)
		if last.CurrentStage != "" {
			bar.Describe(last.CurrentStage)
		}
		if last.Status == "completed" || last.Status == "failed" {
			break
		}
	}
	_ = bar.Finish()
	if last.Status == "failed" {
		return fmt.Errorf("task failed: %s", emptyOr(last.ErrorMessage, "unknown error"))
	}
	fmt.Printf("%s Task completed\n", ui.ok("[OK]"))
	for kind := range last.ResultRefs {
		if kind == "input" {
			continue
		}
		fmt.Printf("  %s diagramq task fetch %s %s\n", ui.dim("fetch:"), id, kind)
	}
	return nil
}

func printTaskTable(out listResp, ui *ui) {
	width := 120
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 60 {
			width = w
		}
	}
	nameWidth := width - 84
	if nameWidth < 12 {
		nameWidth = 12
	}

	fmt.Printf("%-36s  %-12s  %-10s  %8s  %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "FILE")
	for _, t := range out.Tasks {
		st := t.Status
		switch st {
		case "completed":
			st = ui.ok(st)
		case "failed":
			st = ui.err(st)
		case "processing":
			st = ui.info(st)
		default:
			st = ui.warn(st)
		}
		name := t.OriginalFilename
		if len(name) > nameWidth {
			name = name[:nameWidth-3] + "..."
		}
		fmt.Printf("%-36s  %-12s  %-19s  %7d%%  %s\n", t.ID, t.Type, st, t.Progress, name)
	}
	fmt.Printf("%s\n", color.New(color.FgHiBlack).Sprintf("showing %d of %d (offset %d)", len(out.Tasks), out.Total, out.Offset))
}

func inferTaskType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return "image"
	case ".mdj", ".json":
		return "diagram-file"
	}
	return ""
}

func extForKind(kind string) string {
	switch kind {
	case "annotated_image", "corrected_image":
		return ".png"
	case "corrected_diagram":
		return ".puml"
	default:
		return ".json"
	}
}

func newClient(baseURL string) *client {
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func helpTemplate(ui *ui) string {
	title := ui.title("diagramq")
	return fmt.Sprintf(`%s — CLI for diagramQ

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  diagramq init
  diagramq task submit class-diagram.png --watch
  diagramq task fetch <id> annotated_image -o annotated.png
  diagramq task list --status completed
  diagramq stats

`, title, configPath())
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("DIAGRAMQ_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".diagramq", "config.yaml")
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("DIAGRAMQ_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
