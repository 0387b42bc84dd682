package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"browsercron/internal/core"
	"browsercron/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const toolCount = 11

// MCPServer exposes configuration management and run history as MCP tools.
type MCPServer struct {
	orch     *core.Orchestrator
	store    *store.Store
	logger   *slog.Logger
	location *time.Location
	version  string
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(orch *core.Orchestrator, store *store.Store, logger *slog.Logger, location *time.Location, version string) *MCPServer {
	if location == nil {
		location = time.Local
	}
	return &MCPServer{
		orch:     orch,
		store:    store,
		logger:   logger,
		location: location,
		version:  version,
	}
}

// Run serves MCP over stdio until stdin closes.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"browsercron",
		s.version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

func scheduleOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("schedule_type",
			mcp.Description("Schedule kind; omit for manual-only configurations"),
			mcp.Enum(string(core.ScheduleOnce), string(core.ScheduleInterval), string(core.ScheduleCron)),
		),
		mcp.WithString("run_once_at",
			mcp.Description("Local date-time for ONCE schedules, e.g. 2025-03-01T09:30:00"),
		),
		mcp.WithNumber("interval_minutes",
			mcp.Description("Period in minutes for INTERVAL schedules"),
			mcp.Min(1),
		),
		mcp.WithString("cron_expression",
			mcp.Description("6-field cron expression (sec min hour dom month dow) for CRON schedules, e.g. '0 0 9 * * MON-FRI'"),
		),
	}
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	stepsDoc := "Ordered steps. Each item: {type: NAVIGATE|CLICK|INPUT|WAIT|SCREENSHOT|SCROLL|SELECT, selector, value, waitSeconds, captureScreenshot, captureSelector}"

	createOpts := []mcp.ToolOption{
		mcp.WithDescription("Create a browser automation configuration and schedule it when active"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Configuration name")),
		mcp.WithString("description", mcp.Description("Free-form description")),
		mcp.WithArray("steps", mcp.Required(), mcp.Description(stepsDoc), mcp.Items(map[string]any{"type": "object"})),
		mcp.WithBoolean("active", mcp.Description("Whether the schedule is armed, default true")),
	}
	mcpServer.AddTool(mcp.NewTool("browser_create_config", append(createOpts, scheduleOptions()...)...), s.handleCreateConfig)

	mcpServer.AddTool(mcp.NewTool("browser_list_configs",
		mcp.WithDescription("List all automation configurations"),
		mcp.WithString("status",
			mcp.Description("Filter: active or inactive"),
			mcp.Enum("active", "inactive"),
		),
	), s.handleListConfigs)

	mcpServer.AddTool(mcp.NewTool("browser_get_config",
		mcp.WithDescription("Show a configuration with its steps and schedule status"),
		mcp.WithString("config_id", mcp.Required(), mcp.Description("Configuration ID")),
	), s.handleGetConfig)

	updateOpts := []mcp.ToolOption{
		mcp.WithDescription("Update a configuration. Omitted fields keep their value; steps are replaced wholesale when given"),
		mcp.WithString("config_id", mcp.Required(), mcp.Description("Configuration ID")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithArray("steps", mcp.Description(stepsDoc), mcp.Items(map[string]any{"type": "object"})),
		mcp.WithBoolean("active", mcp.Description("Arm or disarm the schedule")),
		mcp.WithBoolean("clear_schedule", mcp.Description("Remove the schedule, making the configuration manual-only")),
	}
	mcpServer.AddTool(mcp.NewTool("browser_update_config", append(updateOpts, scheduleOptions()...)...), s.handleUpdateConfig)

	mcpServer.AddTool(mcp.NewTool("browser_delete_config",
		mcp.WithDescription("Delete a configuration"),
		mcp.WithString("config_id", mcp.Required(), mcp.Description("Configuration ID")),
		mcp.WithBoolean("force", mcp.Description("Also delete its run results and screenshots")),
	), s.handleDeleteConfig)

	mcpServer.AddTool(mcp.NewTool("browser_toggle_config",
		mcp.WithDescription("Flip a configuration between active and inactive"),
		mcp.WithString("config_id", mcp.Required(), mcp.Description("Configuration ID")),
	), s.handleToggleConfig)

	mcpServer.AddTool(mcp.NewTool("browser_run_config",
		mcp.WithDescription("Run a configuration now and wait for the result"),
		mcp.WithString("config_id", mcp.Required(), mcp.Description("Configuration ID")),
	), s.handleRunConfig)

	mcpServer.AddTool(mcp.NewTool("browser_list_history",
		mcp.WithDescription("List run results, newest first"),
		mcp.WithString("config_id", mcp.Description("Only results of this configuration")),
		mcp.WithString("status",
			mcp.Description("Only results with this status"),
			mcp.Enum(string(core.RunStatusSuccess), string(core.RunStatusFailed), string(core.RunStatusCancelled)),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of results, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListHistory)

	mcpServer.AddTool(mcp.NewTool("browser_get_result",
		mcp.WithDescription("Show a run result with its log"),
		mcp.WithString("result_id", mcp.Required(), mcp.Description("Run result ID")),
		mcp.WithNumber("tail",
			mcp.Description("Only the last N log lines, default all"),
			mcp.Min(0),
		),
	), s.handleGetResult)

	mcpServer.AddTool(mcp.NewTool("browser_schedule_status",
		mcp.WithDescription("Report whether a configuration holds a timer and when it fires next"),
		mcp.WithString("config_id", mcp.Required(), mcp.Description("Configuration ID")),
	), s.handleScheduleStatus)

	previewOpts := []mcp.ToolOption{
		mcp.WithDescription("Preview the next fire times of a schedule without saving it"),
		mcp.WithNumber("count",
			mcp.Description("Number of fire times, default 5"),
			mcp.Min(1),
			mcp.Max(20),
		),
	}
	mcpServer.AddTool(mcp.NewTool("browser_schedule_preview", append(previewOpts, scheduleOptions()...)...), s.handleSchedulePreview)

	s.logger.Info("MCP tools registered", "count", toolCount)
}

func (s *MCPServer) handleCreateConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	steps, err := parseSteps(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cfg := &core.Configuration{
		Name:        mcp.ParseString(request, "name", ""),
		Description: mcp.ParseString(request, "description", ""),
		Steps:       steps,
		Schedule:    parseSchedule(request),
		Active:      mcp.ParseBoolean(request, "active", true),
	}
	saved, err := s.orch.Create(ctx, cfg)
	if res := s.savedResult(ctx, "created", saved, err); res != nil {
		return res, nil
	}
	return mcp.NewToolResultError(s.errorText("create configuration", err)), nil
}

func (s *MCPServer) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := mcp.ParseString(request, "status", "")
	configs, err := s.orch.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(s.errorText("list configurations", err)), nil
	}

	var b strings.Builder
	count := 0
	for _, cfg := range configs {
		if (filter == "active" && !cfg.Active) || (filter == "inactive" && cfg.Active) {
			continue
		}
		count++
		icon := "▶️"
		if !cfg.Active {
			icon = "⏸️"
		}
		fmt.Fprintf(&b, "%s %s\n", icon, cfg.ID)
		fmt.Fprintf(&b, "  Name: %s\n", cfg.Name)
		fmt.Fprintf(&b, "  Steps: %d\n", len(cfg.Steps))
		fmt.Fprintf(&b, "  Schedule: %s\n", describeSchedule(cfg.Schedule))
		if status, err := s.orch.Status(ctx, cfg.ID); err == nil && status.NextFireAt != nil {
			fmt.Fprintf(&b, "  Next run: %s\n", s.formatTime(status.NextFireAt))
		}
		b.WriteString("\n")
	}
	if count == 0 {
		return mcp.NewToolResultText("No configurations found"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d configurations:\n\n%s", count, b.String())), nil
}

func (s *MCPServer) handleGetConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configID := mcp.ParseString(request, "config_id", "")
	cfg, err := s.orch.Get(ctx, configID)
	if err != nil {
		return mcp.NewToolResultError(s.errorText("load configuration", err)), nil
	}
	return mcp.NewToolResultText(s.describeConfig(ctx, cfg)), nil
}

func (s *MCPServer) handleUpdateConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configID := mcp.ParseString(request, "config_id", "")
	cfg, err := s.orch.Get(ctx, configID)
	if err != nil {
		return mcp.NewToolResultError(s.errorText("load configuration", err)), nil
	}

	if name := mcp.ParseString(request, "name", ""); name != "" {
		cfg.Name = name
	}
	if _, ok := arguments(request)["description"]; ok {
		cfg.Description = mcp.ParseString(request, "description", "")
	}
	if _, ok := arguments(request)["steps"]; ok {
		if cfg.Steps, err = parseSteps(request); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	cfg.Active = mcp.ParseBoolean(request, "active", cfg.Active)
	if mcp.ParseBoolean(request, "clear_schedule", false) {
		cfg.Schedule = nil
	} else if sched := parseSchedule(request); sched != nil {
		cfg.Schedule = sched
	}

	saved, err := s.orch.Update(ctx, configID, cfg)
	if res := s.savedResult(ctx, "updated", saved, err); res != nil {
		return res, nil
	}
	return mcp.NewToolResultError(s.errorText("update configuration", err)), nil
}

func (s *MCPServer) handleDeleteConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configID := mcp.ParseString(request, "config_id", "")
	removed, err := s.orch.Delete(ctx, configID, mcp.ParseBoolean(request, "force", false))
	if err != nil {
		return mcp.NewToolResultError(s.errorText("delete configuration", err)), nil
	}
	text := fmt.Sprintf("Configuration deleted: %s", configID)
	if removed > 0 {
		text += fmt.Sprintf("\nRun results removed: %d", removed)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleToggleConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configID := mcp.ParseString(request, "config_id", "")
	cfg, err := s.orch.Toggle(ctx, configID)
	if res := s.savedResult(ctx, "toggled", cfg, err); res != nil {
		return res, nil
	}
	return mcp.NewToolResultError(s.errorText("toggle configuration", err)), nil
}

func (s *MCPServer) handleRunConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configID := mcp.ParseString(request, "config_id", "")
	result, err := s.orch.RunNow(ctx, configID)
	if err != nil {
		return mcp.NewToolResultError(s.errorText("run configuration", err)), nil
	}
	return mcp.NewToolResultText(s.describeResult(result, 0)), nil
}

func (s *MCPServer) handleListHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.ResultFilter{
		ConfigID: mcp.ParseString(request, "config_id", ""),
		Status:   core.RunStatus(mcp.ParseString(request, "status", "")),
		Limit:    int(mcp.ParseFloat64(request, "limit", 20)),
	}
	results, total, err := s.store.ListResults(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(s.errorText("list run results", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No run results found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Showing %d of %d run results:\n\n", len(results), total)
	for _, r := range results {
		fmt.Fprintf(&b, "[%s] Result ID: %s\n", statusToIcon(r.Status), r.ID)
		fmt.Fprintf(&b, "    Configuration: %s (%s)\n", r.ConfigName, r.ConfigID)
		fmt.Fprintf(&b, "    Status: %s, trigger: %s\n", r.Status, r.Trigger)
		fmt.Fprintf(&b, "    Started: %s\n", s.formatTime(&r.StartTime))
		if r.EndTime != nil {
			fmt.Fprintf(&b, "    Duration: %s\n", r.Duration().Round(time.Millisecond))
		}
		if r.Error != nil {
			fmt.Fprintf(&b, "    Error: %s\n", truncateString(*r.Error, 120))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resultID := mcp.ParseString(request, "result_id", "")
	result, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return mcp.NewToolResultError(s.errorText("load run result", err)), nil
	}
	return mcp.NewToolResultText(s.describeResult(result, int(mcp.ParseFloat64(request, "tail", 0)))), nil
}

func (s *MCPServer) handleScheduleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configID := mcp.ParseString(request, "config_id", "")
	status, err := s.orch.Status(ctx, configID)
	if err != nil {
		return mcp.NewToolResultError(s.errorText("load schedule status", err)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Configuration: %s (%s)\n", status.ConfigName, status.ConfigID)
	fmt.Fprintf(&b, "Active: %t\n", status.IsActive)
	fmt.Fprintf(&b, "Scheduled: %t\n", status.IsScheduled)
	fmt.Fprintf(&b, "Running: %t\n", status.IsRunning)
	fmt.Fprintf(&b, "Schedule: %s\n", describeSchedule(status.Schedule))
	fmt.Fprintf(&b, "Next run: %s\n", s.formatTime(status.NextFireAt))
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleSchedulePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sched := parseSchedule(request)
	if sched == nil {
		return mcp.NewToolResultError("schedule_type is required"), nil
	}
	preview := s.orch.Preview(sched, int(mcp.ParseFloat64(request, "count", 5)))
	if !preview.Valid {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid schedule: %s", preview.Error)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Schedule: %s\n", describeSchedule(sched))
	fmt.Fprintf(&b, "Time zone: %s\n\n", s.location)
	b.WriteString("Upcoming fire times:\n")
	for i, t := range preview.Next {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, s.formatTime(&t))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// savedResult renders the outcome of a create, update or toggle. It returns
// nil when err means nothing was saved.
func (s *MCPServer) savedResult(ctx context.Context, verb string, cfg *core.Configuration, err error) *mcp.CallToolResult {
	var serr *core.InvalidScheduleError
	if err != nil && (cfg == nil || !errors.As(err, &serr)) {
		return nil
	}
	text := fmt.Sprintf("Configuration %s\n%s", verb, s.describeConfig(ctx, cfg))
	if serr != nil {
		text += fmt.Sprintf("\nWarning: saved but not scheduled: %s", serr.Reason)
	}
	return mcp.NewToolResultText(text)
}

func (s *MCPServer) errorText(action string, err error) string {
	var herr *core.HasResultsError
	switch {
	case errors.Is(err, core.ErrConfigNotFound):
		return "Configuration not found"
	case errors.Is(err, core.ErrResultNotFound):
		return "Run result not found"
	case errors.As(err, &herr):
		return fmt.Sprintf("Configuration has %d run results; pass force=true to delete them too", herr.Count)
	case errors.Is(err, core.ErrAlreadyRunning):
		return "Configuration is already running"
	}
	var verr *core.ValidationError
	if !errors.As(err, &verr) && !errors.Is(err, core.ErrInvalidSchedule) {
		s.logger.Error(action, "err", err)
	}
	return fmt.Sprintf("Failed to %s: %v", action, err)
}

func (s *MCPServer) describeConfig(ctx context.Context, cfg *core.Configuration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\n", cfg.ID)
	fmt.Fprintf(&b, "Name: %s\n", cfg.Name)
	if cfg.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", cfg.Description)
	}
	fmt.Fprintf(&b, "Active: %t\n", cfg.Active)
	fmt.Fprintf(&b, "Schedule: %s\n", describeSchedule(cfg.Schedule))
	if status, err := s.orch.Status(ctx, cfg.ID); err == nil {
		fmt.Fprintf(&b, "Scheduled: %t\n", status.IsScheduled)
		if status.NextFireAt != nil {
			fmt.Fprintf(&b, "Next run: %s\n", s.formatTime(status.NextFireAt))
		}
	}
	fmt.Fprintf(&b, "Steps (%d):\n", len(cfg.Steps))
	for _, step := range cfg.Steps {
		fmt.Fprintf(&b, "  %d. %s", step.Order+1, step.Type)
		if step.Selector != "" {
			fmt.Fprintf(&b, " selector=%q", step.Selector)
		}
		if step.Value != "" {
			fmt.Fprintf(&b, " value=%q", truncateString(step.Value, 60))
		}
		if step.WaitSeconds > 0 {
			fmt.Fprintf(&b, " wait=%ds", step.WaitSeconds)
		}
		if step.CaptureScreenshot {
			b.WriteString(" +screenshot")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Created: %s\n", s.formatTime(&cfg.CreatedAt))
	return b.String()
}

func (s *MCPServer) describeResult(r *core.RunResult, tail int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Result ID: %s\n", statusToIcon(r.Status), r.ID)
	fmt.Fprintf(&b, "Configuration: %s (%s)\n", r.ConfigName, r.ConfigID)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	fmt.Fprintf(&b, "Trigger: %s\n", r.Trigger)
	fmt.Fprintf(&b, "Started: %s\n", s.formatTime(&r.StartTime))
	if r.EndTime != nil {
		fmt.Fprintf(&b, "Ended: %s (%s)\n", s.formatTime(r.EndTime), r.Duration().Round(time.Millisecond))
	}
	if r.Error != nil {
		fmt.Fprintf(&b, "Error: %s\n", *r.Error)
	}
	for i, path := range r.Screenshots {
		fmt.Fprintf(&b, "Screenshot %d: %s\n", i+1, path)
	}
	b.WriteString("\nLog:\n")
	b.WriteString(tailLines(r.Logs, tail))
	return b.String()
}

func arguments(request mcp.CallToolRequest) map[string]any {
	return request.GetArguments()
}

func parseSteps(request mcp.CallToolRequest) ([]core.Step, error) {
	raw, ok := arguments(request)["steps"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid steps: %w", err)
	}
	var steps []core.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("invalid steps: %w", err)
	}
	return steps, nil
}

func parseSchedule(request mcp.CallToolRequest) *core.Schedule {
	kind := strings.ToUpper(strings.TrimSpace(mcp.ParseString(request, "schedule_type", "")))
	if kind == "" {
		return nil
	}
	return &core.Schedule{
		Type:            core.ScheduleType(kind),
		RunOnceAt:       mcp.ParseString(request, "run_once_at", ""),
		IntervalMinutes: int(mcp.ParseFloat64(request, "interval_minutes", 0)),
		CronExpression:  mcp.ParseString(request, "cron_expression", ""),
	}
}

func describeSchedule(s *core.Schedule) string {
	if s == nil {
		return "manual only"
	}
	switch s.Type {
	case core.ScheduleOnce:
		return "once at " + s.RunOnceAt
	case core.ScheduleInterval:
		return fmt.Sprintf("every %d minutes", s.IntervalMinutes)
	case core.ScheduleCron:
		return "cron " + s.CronExpression
	default:
		return string(s.Type)
	}
}

func (s *MCPServer) formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.In(s.location).Format("2006-01-02 15:04:05")
}

func tailLines(content string, n int) string {
	if n <= 0 {
		return content
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func statusToIcon(status core.RunStatus) string {
	switch status {
	case core.RunStatusSuccess:
		return "✅"
	case core.RunStatusFailed:
		return "❌"
	case core.RunStatusCancelled:
		return "🚫"
	case core.RunStatusRunning:
		return "▶️"
	default:
		return "❓"
	}
}
