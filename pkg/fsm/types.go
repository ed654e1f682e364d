package fsm

import "github.com/edl-tools/tachyon-setup/pkg/setupconfig"

// RunRequest is the FSM input
type RunRequest struct {
	RunID     string
	Timezone  string
	Overrides setupconfig.Overrides
}

// RunResponse is the FSM output (accumulated across transitions)
type RunResponse struct {
	// From DiscoverDevice
	DeviceID string
	LogPath  string

	// From Download
	PackagePath string

	// From RegisterDevice
	ProductID   int
	ProductSlug string

	// From BuildConfig
	BlobPath string
	XMLPath  string

	// From Flash/FinalReport
	Step         int
	Status       string
	ErrorMessage string
}

// State names
const (
	StateDiscoverDevice = "discover_device"
	StateVerifyLogin    = "verify_login"
	StateDeviceInfo     = "device_info"
	StateUserConfig     = "user_config"
	StateSelectProduct  = "select_product"
	StateSelectVariant  = "select_variant"
	StateSelectCountry  = "select_country"
	StateDownload       = "download"
	StateRegisterDevice = "register_device"
	StateBuildConfig    = "build_config"
	StateFlash          = "flash"
	StateFinalReport    = "final_report"
	StateDone           = "done"
)

// Step numbers shown in the wizard banners.
const (
	StepDiscover = iota + 1
	StepLogin
	StepUserConfig
	StepProduct
	StepVariant
	StepCountry
	StepDownload
	StepRegister
	StepConfigBlob
	StepFlash
	StepFinal
)
