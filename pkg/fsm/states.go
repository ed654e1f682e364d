package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edl-tools/tachyon-setup/pkg/cloud"
	"github.com/edl-tools/tachyon-setup/pkg/configblob"
	"github.com/edl-tools/tachyon-setup/pkg/db"
	"github.com/edl-tools/tachyon-setup/pkg/device"
	"github.com/edl-tools/tachyon-setup/pkg/download"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
	"github.com/edl-tools/tachyon-setup/pkg/steps"
	"github.com/edl-tools/tachyon-setup/pkg/ui"
	"github.com/superfly/fsm"
)

// enter resolves the run context of req and records the step reached. Every
// stage talks to the user, so a stage is never retried: retries abort.
func (m *Machine) enter(ctx context.Context, req *fsm.Request[RunRequest, RunResponse], state string, step int) (*runContext, *RunResponse, error) {
	slog.Info("fsm_state_"+state, "run_id", req.Msg.RunID, "step", step)

	rc, err := m.lookup(req.Msg.RunID)
	if err != nil {
		slog.Error("run_context_missing", "run_id", req.Msg.RunID, "state", state)
		return nil, nil, fsm.Abort(err)
	}

	if retryCount := fsm.RetryFromContext(ctx); retryCount > 0 {
		slog.Error("interactive_state_retried", "run_id", rc.id, "state", state, "retry", retryCount)
		return nil, nil, m.abort(rc, fmt.Errorf("state %s cannot be retried", state))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &RunResponse{}
	}
	resp.Step = step

	if err := m.repo.UpdateStep(rc.id, step); err != nil {
		slog.Warn("run_step_not_recorded", "run_id", rc.id, "step", step, "error", err)
	}
	return rc, resp, nil
}

// abort stops the run with err.
func (m *Machine) abort(rc *runContext, err error) error {
	rc.err = err
	return fsm.Abort(err)
}

// handleDiscoverDevice waits for a device in update mode and opens the run log
func (m *Machine) handleDiscoverDevice(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateDiscoverDevice, StepDiscover)
	if err != nil {
		return nil, err
	}

	dev, err := steps.Run(ctx, m.runner, StepDiscover, discoverDescription, 0, func(ctx context.Context) (*device.Device, error) {
		m.ui.Println("")
		return m.discoverer.Wait(ctx)
	})
	if err != nil {
		return nil, m.abort(rc, err)
	}
	rc.device = dev

	if err := m.openRunLog(rc); err != nil {
		return nil, m.abort(rc, err)
	}
	m.ui.Printf("\nStarting Process. See logs at: %s\n\n", rc.logPath)

	resp.DeviceID = dev.ID
	resp.LogPath = rc.logPath
	return fsm.NewResponse(resp), nil
}

// handleVerifyLogin reuses the stored token or logs in again
func (m *Machine) handleVerifyLogin(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateVerifyLogin, StepLogin)
	if err != nil {
		return nil, err
	}

	err = steps.Do(ctx, m.runner, StepLogin, loginDescription, 0, func(ctx context.Context) error {
		return m.verifyLogin(ctx, rc)
	})
	if err != nil {
		return nil, m.abort(rc, err)
	}

	m.ui.Println("")
	m.ui.Printf("...All set! You're logged in as %s and ready to go!\n", m.ui.Bold(m.userProfile.Username()))
	return fsm.NewResponse(resp), nil
}

// verifyLogin never fails on a bad token, only on a failed login.
func (m *Machine) verifyLogin(ctx context.Context, rc *runContext) error {
	client := rc.client.Load()
	if client.Token() != "" {
		err := cloud.VerifyToken(ctx, client, m.now())
		if err == nil {
			slog.Info("token_valid", "run_id", rc.id)
			return nil
		}
		slog.Warn("token_rejected", "run_id", rc.id, "error", err)
	}

	creds, err := cloud.Login(ctx, client, m.prompter, m.userProfile.Username())
	if err != nil {
		return err
	}
	if err := m.userProfile.SetCredentials(creds.Username, creds.Token); err != nil {
		return errors.Wrap(err, "failed to store credentials")
	}
	if err := m.userProfile.Save(); err != nil {
		return err
	}

	rc.client.Store(client.WithToken(creds.Token))
	slog.Info("client_reinitialized", "run_id", rc.id, "username", creds.Username)
	return nil
}

// handleDeviceInfo reads what the device reports and resolves the final
// configuration with it
func (m *Machine) handleDeviceInfo(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateDeviceInfo, StepLogin)
	if err != nil {
		return nil, err
	}

	info, err := ui.Busy(m.ui, "Getting device info", func() (*device.Info, error) {
		return m.infoReader.ReadInfo(ctx, *rc.device, rc.log)
	})
	if err != nil {
		slog.Error("device_info_failed", "run_id", rc.id, "device_id", rc.device.ID, "error", err)
		return nil, m.abort(rc, errors.WithKind(err, errors.KindDeviceInfo,
			"Unable to get device info. Please restart the device and try again."))
	}
	rc.info = info
	m.printDeviceInfo(rc)

	hints := setupconfig.HintsFromDevice(info.Region, info.OSVersion)
	cfg, err := m.resolver.Resolve(setupconfig.Defaults(rc.timezone), hints, rc.file, rc.overrides)
	if err != nil {
		return nil, m.abort(rc, err)
	}

	if m.staging {
		cfg.APIServer = m.apiURL
		cfg.Server = StagingServer
		cfg.Verbose = true
	}
	rc.cfg = cfg

	if cfg.Silent {
		m.ui.Println(m.ui.Bold(fmt.Sprintf("Skipping to Step %d - Using configuration file: %s", StepDownload, cfg.LoadConfig)))
		m.ui.Println("")
	}
	return fsm.NewResponse(resp), nil
}

func (m *Machine) printDeviceInfo(rc *runContext) {
	info := rc.info
	id := info.DeviceID
	if id == "" {
		id = rc.device.ID
	}

	m.ui.Println(m.ui.Bold("Device info:"))
	m.ui.Println("")
	m.ui.Printf(" -  Device ID: %s\n", id)
	if strings.Contains(info.OSVersion, "EVT") {
		m.ui.Println(" -  Board: EVT")
	}
	m.ui.Printf(" -  Region: %s\n", info.Region)
	m.ui.Printf(" -  OS Version: %s\n", info.OSVersion)

	usbWarning := ""
	if rc.device.USB.Slow() {
		usbWarning = m.ui.Yellow(" (use a USB 3.0 port and USB-C cable for faster flashing)")
	}
	m.ui.Printf(" -  USB Version: %s%s\n", rc.device.USB, usbWarning)
}

// handleUserConfig asks for the system password and Wi-Fi network
func (m *Machine) handleUserConfig(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateUserConfig, StepUserConfig)
	if err != nil {
		return nil, err
	}
	if rc.cfg.Silent {
		return fsm.NewResponse(resp), nil
	}

	uc, err := steps.Run(ctx, m.runner, StepUserConfig, userConfigDescription, 0, func(ctx context.Context) (*userConfig, error) {
		return m.promptUserConfig()
	})
	if err != nil {
		return nil, m.abort(rc, err)
	}

	rc.cfg.SystemPassword = uc.passwordHash
	rc.cfg.WiFi = uc.wifi
	return fsm.NewResponse(resp), nil
}

// handleSelectProduct picks or creates the product the device joins
func (m *Machine) handleSelectProduct(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateSelectProduct, StepProduct)
	if err != nil {
		return nil, err
	}
	if rc.cfg.Silent {
		return fsm.NewResponse(resp), nil
	}

	productID, err := steps.Run(ctx, m.runner, StepProduct, productDescription, steps.DefaultMinDuration, func(ctx context.Context) (int, error) {
		return m.selectProduct(ctx, rc)
	})
	if err != nil {
		return nil, m.abort(rc, err)
	}

	rc.cfg.ProductID = productID
	resp.ProductID = productID
	return fsm.NewResponse(resp), nil
}

// handleSelectVariant picks the OS variant unless it is already known
func (m *Machine) handleSelectVariant(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateSelectVariant, StepVariant)
	if err != nil {
		return nil, err
	}
	cfg := rc.cfg
	if cfg.Silent {
		return fsm.NewResponse(resp), nil
	}

	if cfg.IsLocalVersion || cfg.Variant != "" {
		using := cfg.Variant
		if using == "" {
			using = cfg.Version
		}
		m.ui.Printf("Skipping to Step %d - Using %s operating system.\n\n", StepCountry, using)
		return fsm.NewResponse(resp), nil
	}

	kind := cfg.BoardKind()
	description := variantIntro + setupconfig.VariantDescription(kind)
	variant, err := steps.Run(ctx, m.runner, StepVariant, description, steps.DefaultMinDuration, func(ctx context.Context) (setupconfig.Variant, error) {
		return m.selectVariant(kind)
	})
	if err != nil {
		return nil, m.abort(rc, err)
	}

	cfg.Variant = string(variant)
	return fsm.NewResponse(resp), nil
}

// handleSelectCountry picks the country of the cellular profile
func (m *Machine) handleSelectCountry(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateSelectCountry, StepCountry)
	if err != nil {
		return nil, err
	}
	if rc.cfg.Silent {
		return fsm.NewResponse(resp), nil
	}

	country, err := steps.Run(ctx, m.runner, StepCountry, countryDescription, steps.DefaultMinDuration, func(ctx context.Context) (string, error) {
		return m.selectCountry()
	})
	if err != nil {
		return nil, m.abort(rc, err)
	}

	rc.cfg.Country = country
	return fsm.NewResponse(resp), nil
}

// handleDownload resolves the OS package, downloading it unless the version
// is a local path
func (m *Machine) handleDownload(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateDownload, StepDownload)
	if err != nil {
		return nil, err
	}

	packagePath, err := steps.Run(ctx, m.runner, StepDownload, downloadDescription, steps.DefaultMinDuration, func(ctx context.Context) (string, error) {
		return m.download(ctx, rc.cfg)
	})
	if err != nil {
		return nil, m.abort(rc, err)
	}

	rc.cfg.PackagePath = packagePath
	resp.PackagePath = packagePath
	return fsm.NewResponse(resp), nil
}

func (m *Machine) download(ctx context.Context, cfg *setupconfig.Config) (string, error) {
	if cfg.IsLocalVersion {
		slog.Info("download_skipped_local_version", "path", cfg.Version)
		return cfg.Version, nil
	}

	manifest, err := download.FetchManifest(ctx, m.opener, m.manifestURL, cfg.BoardKind(), cfg.Version)
	if err != nil {
		return "", err
	}
	build, err := download.SelectBuild(manifest, cfg.Region, cfg.Variant, cfg.Board)
	if err != nil {
		return "", err
	}

	m.ui.Println(m.ui.Bold("Operating system information:"))
	m.ui.Println(m.ui.Bold(build.Description()))
	m.ui.Printf("%s %s\n", m.ui.Bold("Version:"), build.Version)

	artifact := build.Artifacts[0]
	update, stop := m.ui.Progress("Downloading " + artifact.FileName())
	defer stop()
	m.cache.OnProgress(update)

	return m.cache.Download(ctx, artifact, download.Options{AlwaysCleanCache: cfg.AlwaysCleanCache})
}

// handleRegisterDevice adds the device to its product and collects the
// registration code and eSIM profiles
func (m *Machine) handleRegisterDevice(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateRegisterDevice, StepRegister)
	if err != nil {
		return nil, err
	}
	cfg := rc.cfg

	product, err := rc.client.Load().Product(ctx, cfg.ProductID)
	if err != nil {
		slog.Error("product_lookup_failed", "run_id", rc.id, "product_id", cfg.ProductID, "error", err)
		return nil, m.abort(rc, errors.Wrap(err, fmt.Sprintf("failed to get product %d", cfg.ProductID)))
	}
	rc.product = product

	code, err := steps.Run(ctx, m.runner, StepRegister, registerDescription, steps.DefaultMinDuration, func(ctx context.Context) (string, error) {
		return cloud.Register(ctx, rc.client.Load(), cfg.ProductID, rc.device.ID)
	})
	if err != nil {
		return nil, m.abort(rc, err)
	}
	cfg.RegistrationCode = code

	esim, err := rc.client.Load().ESIMProfiles(ctx, cfg.ProductID, rc.device.ID, cfg.Country)
	if err != nil {
		slog.Warn("esim_profiles_failed", "run_id", rc.id, "device_id", rc.device.ID, "error", err)
		m.ui.Warn(fmt.Sprintf("Error getting eSIM profiles: %s\n", err.Error()))
	} else {
		cfg.ESIM = esim
	}

	resp.ProductID = product.ID
	resp.ProductSlug = product.Slug
	return fsm.NewResponse(resp), nil
}

// handleBuildConfig writes the config blob, its flash program and the saved
// configuration
func (m *Machine) handleBuildConfig(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateBuildConfig, StepConfigBlob)
	if err != nil {
		return nil, err
	}
	cfg := rc.cfg

	result, err := steps.Run(ctx, m.runner, StepConfigBlob, configBlobDescription, steps.DefaultMinDuration, func(ctx context.Context) (*configblob.Result, error) {
		return m.serializer.Serialize(cfg, rc.device.ID)
	})
	if err != nil {
		return nil, m.abort(rc, err)
	}
	rc.blob = result

	part, ok := rc.info.Partition(device.MiscPartition)
	if !ok {
		return nil, m.abort(rc, fmt.Errorf("device %s did not report a %s partition", rc.device.ID, device.MiscPartition))
	}
	xmlPath, err := device.WriteProgramXML(part, result.Path)
	if err != nil {
		return nil, m.abort(rc, err)
	}
	rc.xmlPath = xmlPath

	if cfg.SaveConfig != "" {
		if err := configblob.Save(cfg.SaveConfig, result.Blob, m.behavior); err != nil {
			return nil, m.abort(rc, err)
		}
		m.ui.Printf("Configuration file written here: %s\n", cfg.SaveConfig)
	}

	resp.BlobPath = result.Path
	resp.XMLPath = xmlPath
	return fsm.NewResponse(resp), nil
}

// handleFlash writes the OS package and the config partition. A failure here
// does not abort the run: the final report tells the user to retry.
func (m *Machine) handleFlash(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateFlash, StepFlash)
	if err != nil {
		return nil, err
	}

	description := flashDescription(rc.device.USB.Slow(), m.consoleURL(rc), m.ui.Yellow)
	err = steps.Do(ctx, m.runner, StepFlash, description, steps.DefaultMinDuration, func(ctx context.Context) error {
		return m.flash(ctx, rc)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, m.abort(rc, err)
		}
		slog.Error("flash_failed", "run_id", rc.id, "device_id", rc.device.ID, "error", err)
		rc.flashErr = err
		resp.Status = db.StatusFlashFailed
		resp.ErrorMessage = err.Error()
	}
	return fsm.NewResponse(resp), nil
}

func (m *Machine) flash(ctx context.Context, rc *runContext) error {
	cfg := rc.cfg
	if cfg.SkipFlashingOS {
		slog.Info("flash_os_skipped", "run_id", rc.id)
	} else if err := m.flasher.FlashPackage(ctx, *rc.device, cfg.PackagePath, true, rc.log); err != nil {
		return err
	}

	skipReset := setupconfig.Variant(cfg.Variant) == setupconfig.DesktopVariant
	return m.flasher.FlashProgram(ctx, *rc.device, []string{cfg.PackagePath, rc.xmlPath}, skipReset, rc.log)
}

func (m *Machine) consoleURL(rc *runContext) string {
	slug := ""
	if rc.product != nil {
		slug = rc.product.Slug
	}
	return cloud.ConsoleURL(m.staging, slug, rc.device.ID)
}

// handleFinalReport tells the user what happens next
func (m *Machine) handleFinalReport(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	rc, resp, err := m.enter(ctx, req, StateFinalReport, StepFinal)
	if err != nil {
		return nil, err
	}

	if rc.flashErr != nil {
		m.ui.Println(flashFailedMessage)
		return fsm.NewResponse(resp), nil
	}

	m.runner.Banner(StepFinal, finalMessage(rc.cfg.Variant, m.consoleURL(rc)))
	resp.Status = db.StatusCompleted
	return fsm.NewResponse(resp), nil
}
