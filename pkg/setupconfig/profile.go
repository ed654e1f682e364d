package setupconfig

import "fmt"

// Profile switches between the two observed setup behaviours. Both are
// supported; the application setting behavior-profile picks one per run.
type Profile struct {
	Name string

	// InjectInitialTime adds an initialTime timestamp to the config blob.
	InjectInitialTime bool
	// SubstituteSaltChars replaces '+' with '.' in the crypt salt.
	SubstituteSaltChars bool
	// DetectFromDevice derives region and board hints from the device report.
	DetectFromDevice bool
	// SaveBoard and SaveCountry extend the saved configuration whitelist.
	SaveBoard   bool
	SaveCountry bool
}

var (
	DefaultProfile = Profile{
		Name:                "default",
		InjectInitialTime:   true,
		SubstituteSaltChars: true,
		DetectFromDevice:    true,
		SaveCountry:         true,
	}
	CompatProfile = Profile{
		Name:      "compat",
		SaveBoard: true,
	}
)

// ProfileByName looks up a behaviour profile.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", DefaultProfile.Name:
		return DefaultProfile, nil
	case CompatProfile.Name:
		return CompatProfile, nil
	}
	return Profile{}, fmt.Errorf("unknown behavior profile %q", name)
}
