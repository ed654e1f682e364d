// Package fsm implements the Tachyon provisioning pipeline as a finite state
// machine. Each wizard step is one transition registered with superfly/fsm;
// the interactive collaborators of a run (device, cloud client, log file) live
// in a run context the handlers look up by run id.
package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/edl-tools/tachyon-setup/pkg/cloud"
	"github.com/edl-tools/tachyon-setup/pkg/configblob"
	"github.com/edl-tools/tachyon-setup/pkg/db"
	"github.com/edl-tools/tachyon-setup/pkg/device"
	"github.com/edl-tools/tachyon-setup/pkg/download"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/edl-tools/tachyon-setup/pkg/profile"
	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
	"github.com/edl-tools/tachyon-setup/pkg/steps"
	"github.com/edl-tools/tachyon-setup/pkg/storage"
	"github.com/edl-tools/tachyon-setup/pkg/ui"
	"github.com/google/uuid"
	"github.com/superfly/fsm"
	"go.uber.org/atomic"
)

// StagingServer is the device-facing endpoint written into staging blobs.
const StagingServer = "https://edge.staging.particle.io"

// Dependencies are the collaborators of a Machine.
type Dependencies struct {
	Repo        *db.Repository
	Discoverer  *device.Discoverer
	InfoReader  device.InfoReader
	Flasher     device.Flasher
	Opener      storage.Opener
	Cache       *download.Cache
	Serializer  *configblob.Serializer
	Behavior    setupconfig.Profile
	UserProfile *profile.Profile
	UI          *ui.UI
	Prompter    ui.Prompter
	Runner      *steps.Runner

	APIURL      string
	ManifestURL string
	LogsDir     string
	Staging     bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo        *db.Repository
	discoverer  *device.Discoverer
	infoReader  device.InfoReader
	flasher     device.Flasher
	opener      storage.Opener
	cache       *download.Cache
	serializer  *configblob.Serializer
	behavior    setupconfig.Profile
	resolver    *setupconfig.Resolver
	userProfile *profile.Profile
	ui          *ui.UI
	prompter    ui.Prompter
	runner      *steps.Runner
	apiURL      string
	manifestURL string
	logsDir     string
	staging     bool
	now         func() time.Time

	mu   sync.Mutex
	runs map[string]*runContext
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(deps Dependencies) *Machine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Machine{
		repo:        deps.Repo,
		discoverer:  deps.Discoverer,
		infoReader:  deps.InfoReader,
		flasher:     deps.Flasher,
		opener:      deps.Opener,
		cache:       deps.Cache,
		serializer:  deps.Serializer,
		behavior:    deps.Behavior,
		resolver:    setupconfig.NewResolver(deps.Behavior),
		userProfile: deps.UserProfile,
		ui:          deps.UI,
		prompter:    deps.Prompter,
		runner:      deps.Runner,
		apiURL:      deps.APIURL,
		manifestURL: deps.ManifestURL,
		logsDir:     deps.LogsDir,
		staging:     deps.Staging,
		now:         now,
		runs:        make(map[string]*runContext),
	}
}

// Register registers the provisioning FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[RunRequest, RunResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[RunRequest, RunResponse](manager, "tachyon-setup").
		Start(StateDiscoverDevice, m.tracked(m.handleDiscoverDevice)).
		To(StateVerifyLogin, m.tracked(m.handleVerifyLogin)).
		To(StateDeviceInfo, m.tracked(m.handleDeviceInfo)).
		To(StateUserConfig, m.tracked(m.handleUserConfig)).
		To(StateSelectProduct, m.tracked(m.handleSelectProduct)).
		To(StateSelectVariant, m.tracked(m.handleSelectVariant)).
		To(StateSelectCountry, m.tracked(m.handleSelectCountry)).
		To(StateDownload, m.tracked(m.handleDownload)).
		To(StateRegisterDevice, m.tracked(m.handleRegisterDevice)).
		To(StateBuildConfig, m.tracked(m.handleBuildConfig)).
		To(StateFlash, m.tracked(m.handleFlash)).
		To(StateFinalReport, m.tracked(m.handleFinalReport)).
		End(StateDone).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

type handler = func(context.Context, *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error)

// tracked binds a state handler to its run. The handler is cancelled with the
// run and Run waits for it before closing the run log.
func (m *Machine) tracked(h handler) handler {
	return func(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
		rc, err := m.acquire(req.Msg.RunID)
		if err != nil {
			slog.Error("run_context_unavailable", "run_id", req.Msg.RunID, "error", err)
			return nil, fsm.Abort(err)
		}
		defer rc.active.Done()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(rc.ctx, cancel)
		defer stop()

		return h(ctx, req)
	}
}

// runContext is the mutable state of one run. Handlers read the cloud client
// through client on every use so a login in one stage is seen by all later
// ones.
type runContext struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	timezone  string
	overrides setupconfig.Overrides
	file      setupconfig.Values

	client atomic.Pointer[cloud.Client]

	device  *device.Device
	info    *device.Info
	cfg     *setupconfig.Config
	product *cloud.Product
	blob    *configblob.Result
	xmlPath string

	log     *os.File
	logPath string

	flashErr error
	err      error

	// active counts running handlers; finished is guarded by Machine.mu.
	active   sync.WaitGroup
	finished bool
}

func (m *Machine) register(rc *runContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[rc.id] = rc
}

func (m *Machine) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
}

// acquire marks a handler of run id as running. It fails once the run has
// finished.
func (m *Machine) acquire(id string) (*runContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("no active run %q", id)
	}
	if rc.finished {
		return nil, fmt.Errorf("run %q already finished", id)
	}
	rc.active.Add(1)
	return rc, nil
}

// finish cancels rc and waits for its running handler. No handler starts
// afterwards.
func (m *Machine) finish(rc *runContext) {
	m.mu.Lock()
	rc.finished = true
	m.mu.Unlock()
	rc.cancel()
	rc.active.Wait()
}

func (m *Machine) lookup(id string) (*runContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("no active run %q", id)
	}
	return rc, nil
}

// preflight resolves the configuration without device hints so that a bad
// configuration file fails before the device or the network is touched.
func (m *Machine) preflight(rc *runContext) error {
	if path := rc.overrides.LoadConfig; path != nil && *path != "" {
		values, err := setupconfig.LoadFile(*path)
		if err != nil {
			return err
		}
		rc.file = values
	}

	if _, err := m.resolver.Resolve(setupconfig.Defaults(rc.timezone), nil, rc.file, rc.overrides); err != nil {
		if errors.IsKind(err, errors.KindConfigValidation) {
			m.ui.Error(err.Error())
			m.ui.Error("Re-run the command with the correct configuration file.")
			return errors.MarkReported(err)
		}
		return err
	}
	return nil
}

// openRunLog creates the log file external tools write to.
func (m *Machine) openRunLog(rc *runContext) error {
	if err := os.MkdirAll(m.logsDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create logs directory")
	}
	name := fmt.Sprintf("tachyon_flash_%s_%d.log", rc.device.ID, m.now().UnixMilli())
	path := filepath.Join(m.logsDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "failed to create run log")
	}
	rc.log = f
	rc.logPath = path
	return nil
}

// Result summarizes a finished run.
type Result struct {
	RunID       string
	DeviceID    string
	LogPath     string
	PackagePath string
	BlobPath    string
	ConsoleURL  string
	// Flashed is false when flashing failed; the run can simply be repeated.
	Flashed bool
}

// Pipeline runs provisioning runs through a registered Machine.
type Pipeline struct {
	machine *Machine
	manager *fsm.Manager
	start   fsm.Start[RunRequest, RunResponse]
}

// NewPipeline registers machine with manager.
func NewPipeline(ctx context.Context, machine *Machine, manager *fsm.Manager) (*Pipeline, error) {
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return nil, err
	}
	return &Pipeline{machine: machine, manager: manager, start: start}, nil
}

// Run executes one provisioning run to completion. A flashing failure is not
// an error: it is reported to the user and Result.Flashed is false.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*Result, error) {
	m := p.machine
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rc := &runContext{id: req.RunID, ctx: runCtx, cancel: cancel, timezone: req.Timezone, overrides: req.Overrides}
	rc.client.Store(cloud.NewClient(m.apiURL, m.userProfile.AccessToken()))

	run := &db.Run{RunID: req.RunID, Status: db.StatusRunning}
	if err := m.repo.Create(run); err != nil {
		return nil, err
	}

	m.register(rc)
	defer m.release(rc.id)
	defer func() {
		m.finish(rc)
		if rc.log != nil {
			rc.log.Close()
		}
	}()

	slog.Info("pipeline_start", "run_id", req.RunID)

	if err := m.preflight(rc); err != nil {
		m.record(run, rc, err)
		return nil, err
	}

	resp := &RunResponse{}
	version, err := p.start(ctx, req.RunID, fsm.NewRequest(&req, resp))
	if err != nil {
		err = errors.Wrap(err, "FSM start failed")
		m.record(run, rc, err)
		return nil, err
	}

	waitErr := p.manager.Wait(ctx, version)
	m.finish(rc)
	if rc.err == nil && waitErr != nil {
		rc.err = errors.Wrap(waitErr, "FSM execution failed")
	}
	m.record(run, rc, rc.err)
	if rc.err != nil {
		return nil, rc.err
	}

	result := &Result{
		RunID:    req.RunID,
		DeviceID: rc.device.ID,
		LogPath:  rc.logPath,
		Flashed:  rc.flashErr == nil,
	}
	if rc.cfg != nil {
		result.PackagePath = rc.cfg.PackagePath
	}
	if rc.blob != nil {
		result.BlobPath = rc.blob.Path
	}
	if rc.product != nil {
		result.ConsoleURL = cloud.ConsoleURL(m.staging, rc.product.Slug, rc.device.ID)
	}

	slog.Info("pipeline_complete", "run_id", req.RunID, "device_id", result.DeviceID, "flashed", result.Flashed)
	return result, nil
}

// record writes the outcome of a run to the history.
func (m *Machine) record(run *db.Run, rc *runContext, err error) {
	switch {
	case err != nil:
		run.Status = db.StatusFailed
		run.ErrorMessage = err.Error()
	case rc.flashErr != nil:
		run.Status = db.StatusFlashFailed
		run.ErrorMessage = rc.flashErr.Error()
	default:
		run.Status = db.StatusCompleted
	}
	if rc.device != nil {
		run.DeviceID = rc.device.ID
	}
	if rc.cfg != nil {
		run.PackagePath = rc.cfg.PackagePath
	}
	if rc.blob != nil {
		run.BlobPath = rc.blob.Path
	}
	run.LogPath = rc.logPath

	if current, gerr := m.repo.Get(run.RunID); gerr == nil && current != nil {
		run.Step = current.Step
	}
	if uerr := m.repo.Update(run); uerr != nil {
		slog.Error("run_record_failed", "run_id", run.RunID, "error", uerr)
	}
}
