package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/solarsim/internal/generator"
	"github.com/langchou/solarsim/internal/models"
	"github.com/langchou/solarsim/internal/state"
)

// ErrBackfillInProgress 同一单元已有回填任务在运行
var ErrBackfillInProgress = errors.New("backfill already running for solar unit")

const (
	// progressEvery 每生成多少条更新一次进度
	progressEvery = 500
	// MaxBackfillSteps 单次回填最多生成的记录数
	MaxBackfillSteps = 500_000
)

// BackfillRequest 回填请求
type BackfillRequest struct {
	SerialNumber   string                 `json:"serial_number"`
	RatedCapacityW float64                `json:"rated_capacity_w"`
	IntervalHours  float64                `json:"interval_hours"`
	Start          time.Time              `json:"start"`
	End            time.Time              `json:"end"`
	Windows        []models.AnomalyWindow `json:"anomaly_windows"`
}

// Params 转换为生成参数
func (r BackfillRequest) Params() generator.Params {
	return generator.Params{
		SerialNumber:   r.SerialNumber,
		RatedCapacityW: r.RatedCapacityW,
		IntervalHours:  r.IntervalHours,
		Windows:        r.Windows,
	}
}

// Validate 校验请求
func (r BackfillRequest) Validate() error {
	if r.SerialNumber == "" {
		return fmt.Errorf("%w: serial number is required", generator.ErrInvalidConfiguration)
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", generator.ErrInvalidConfiguration)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s is before start %s", generator.ErrInvalidConfiguration,
			r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	if err := r.Params().Validate(); err != nil {
		return err
	}
	if steps := r.End.Sub(r.Start)/r.step() + 1; steps > MaxBackfillSteps {
		return fmt.Errorf("%w: range %s..%s at %v hours is %d steps, limit %d", generator.ErrInvalidConfiguration,
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), r.IntervalHours, int64(steps), MaxBackfillSteps)
	}
	return nil
}

func (r BackfillRequest) step() time.Duration {
	return time.Duration(r.IntervalHours * float64(time.Hour))
}

// BackfillResult 回填结果
type BackfillResult struct {
	RunID         string               `json:"run_id"`
	SerialNumber  string               `json:"serial_number"`
	Start         time.Time            `json:"start"`
	End           time.Time            `json:"end"`
	Generated     int                  `json:"generated"`
	Inserted      int                  `json:"inserted"`
	AnomalyCounts models.AnomalyCounts `json:"anomaly_counts"`
	Duration      time.Duration        `json:"duration"`
}

// BackfillService 历史数据回填
// 每次运行按时间顺序遍历，结束时一次性批量写入
type BackfillService struct {
	logger *zap.Logger
	gen    *generator.Generator
	sink   Sink
	runs   *state.Manager
	newID  func() string

	// Launch 启动的异步任务使用的上下文
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBackfillService 创建回填服务
func NewBackfillService(logger *zap.Logger, gen *generator.Generator, sink Sink) *BackfillService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &BackfillService{
		logger: logger,
		gen:    gen,
		sink:   sink,
		newID:  uuid.NewString,
		ctx:    ctx,
		cancel: cancel,
	}
	s.runs = state.NewManager(s.onStateChange)
	return s
}

// Run 同步执行回填
func (s *BackfillService) Run(ctx context.Context, req BackfillRequest) (*BackfillResult, error) {
	machine, err := s.begin(req)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, machine, req)
}

// Launch 异步执行回填，返回任务 ID
func (s *BackfillService) Launch(req BackfillRequest) (string, error) {
	machine, err := s.begin(req)
	if err != nil {
		return "", err
	}

	runID := machine.GetState().RunID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.execute(s.ctx, machine, req); err != nil {
			s.logger.Error("Backfill run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()

	return runID, nil
}

// Status 获取任务状态
func (s *BackfillService) Status(runID string) (*state.RunState, bool) {
	machine, ok := s.runs.Get(runID)
	if !ok {
		return nil, false
	}
	return machine.GetState(), true
}

// Runs 所有任务状态，最近变化的在前
func (s *BackfillService) Runs() []*state.RunState {
	all := s.runs.GetAllStates()
	runs := make([]*state.RunState, 0, len(all))
	for _, st := range all {
		runs = append(runs, st)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Since.After(runs[j].Since) })
	return runs
}

// Shutdown 取消所有异步任务并等待退出
func (s *BackfillService) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// begin 校验请求并创建进入 running 的任务，同一单元同时只允许一个
func (s *BackfillService) begin(req BackfillRequest) (*state.Machine, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runs.HasRunning(req.SerialNumber) {
		return nil, fmt.Errorf("%w: %s", ErrBackfillInProgress, req.SerialNumber)
	}
	machine, err := s.runs.Create(s.newID(), req.SerialNumber)
	if err != nil {
		return nil, err
	}
	if err := machine.Trigger(state.EventStart); err != nil {
		return nil, err
	}
	return machine, nil
}

func (s *BackfillService) execute(ctx context.Context, machine *state.Machine, req BackfillRequest) (*BackfillResult, error) {
	startedAt := time.Now()
	runID := machine.GetState().RunID

	result := &BackfillResult{
		RunID:        runID,
		SerialNumber: req.SerialNumber,
		Start:        req.Start.UTC(),
		End:          req.End.UTC(),
	}

	s.logger.Info("Starting backfill",
		zap.String("run_id", runID),
		zap.String("serial_number", req.SerialNumber),
		zap.Time("start", result.Start),
		zap.Time("end", result.End),
		zap.Float64("interval_hours", req.IntervalHours),
		zap.Int("anomaly_windows", len(req.Windows)))

	seq, err := s.gen.NewSequence(req.Params())
	if err != nil {
		return result, s.fail(machine, err)
	}

	step := req.step()
	readings := make([]*models.Reading, 0, int(result.End.Sub(result.Start)/step)+1)

	for ts := result.Start; !ts.After(result.End); ts = ts.Add(step) {
		// 只在两条记录之间响应取消
		if err := ctx.Err(); err != nil {
			result.Generated = len(readings)
			return result, s.fail(machine, fmt.Errorf("backfill cancelled after %d readings: %w", len(readings), err))
		}

		reading, err := seq.Next(ts)
		if err != nil {
			result.Generated = len(readings)
			return result, s.fail(machine, err)
		}
		readings = append(readings, reading)

		if len(readings)%progressEvery == 0 {
			n := len(readings)
			machine.UpdateState(func(st *state.RunState) { st.Generated = n })
		}
	}

	result.Generated = len(readings)
	result.AnomalyCounts = models.CountAnomalies(readings)
	machine.UpdateState(func(st *state.RunState) {
		st.Generated = result.Generated
		st.AnomalyCounts = anomalyCountsByName(result.AnomalyCounts)
	})

	if err := s.sink.InsertMany(ctx, readings); err != nil {
		// 批量写入失败时不认为有任何记录已提交
		return result, s.fail(machine, fmt.Errorf("%w: insert %d readings: %w", ErrSinkWrite, len(readings), err))
	}

	result.Inserted = len(readings)
	result.Duration = time.Since(startedAt)
	machine.UpdateState(func(st *state.RunState) { st.Inserted = result.Inserted })
	if err := machine.Trigger(state.EventComplete); err != nil {
		return result, err
	}

	s.logger.Info("Backfill completed",
		zap.String("run_id", runID),
		zap.String("serial_number", req.SerialNumber),
		zap.Int("records", result.Inserted),
		zap.Int("anomalies", result.AnomalyCounts.Total()),
		zap.Duration("duration", result.Duration))
	for _, kind := range models.AnomalyPriority {
		if n := result.AnomalyCounts[kind]; n > 0 {
			s.logger.Info("Injected anomalies", zap.String("kind", string(kind)), zap.Int("count", n))
		}
	}

	return result, nil
}

func (s *BackfillService) fail(machine *state.Machine, err error) error {
	machine.UpdateState(func(st *state.RunState) { st.Error = err.Error() })
	if terr := machine.Trigger(state.EventFail); terr != nil {
		s.logger.Warn("Failed to mark backfill run failed", zap.Error(terr))
	}
	return err
}

func (s *BackfillService) onStateChange(runID string, from, to string) {
	s.logger.Info("Backfill run state changed",
		zap.String("run_id", runID),
		zap.String("from", from),
		zap.String("to", to))
}

func anomalyCountsByName(counts models.AnomalyCounts) map[string]int {
	byName := make(map[string]int, len(counts))
	for k, v := range counts {
		byName[string(k)] = v
	}
	return byName
}
