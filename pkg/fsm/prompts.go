package fsm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/edl-tools/tachyon-setup/pkg/cloud"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
	"github.com/edl-tools/tachyon-setup/pkg/ui"
)

type userConfig struct {
	passwordHash string
	wifi         *setupconfig.WiFi
}

func (m *Machine) promptUserConfig() (*userConfig, error) {
	var password string
	for password == "" {
		pw, err := ui.PasswordWithConfirmation(m.prompter, m.ui.Writer(),
			"Enter a password for the root and particle accounts:",
			"Re-enter the password for the root and particle accounts:")
		if err != nil {
			return nil, err
		}
		password = pw
		if password == "" {
			m.ui.Println("System password cannot be blank.")
		}
	}

	hash, err := setupconfig.HashPassword(password, m.behavior.SubstituteSaltChars)
	if err != nil {
		return nil, err
	}

	m.ui.Println(m.ui.Bold(wifiIntro))
	var ssid string
	for ssid == "" {
		s, err := m.prompter.Input("Enter the Wi-Fi network name (SSID):", "")
		if err != nil {
			return nil, err
		}
		ssid = strings.TrimSpace(s)
		if ssid == "" {
			m.ui.Println("Wi-Fi network name cannot be blank.")
		}
	}
	wifiPassword, err := m.prompter.Password("Enter the Wi-Fi password:")
	if err != nil {
		return nil, err
	}

	return &userConfig{
		passwordHash: hash,
		wifi:         &setupconfig.WiFi{SSID: ssid, Password: wifiPassword},
	}, nil
}

// selectProduct picks an organization (or the personal sandbox) and one of
// its Tachyon products, creating one when there is none or the user asks.
func (m *Machine) selectProduct(ctx context.Context, rc *runContext) (int, error) {
	client := rc.client.Load()

	orgs, err := client.Orgs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list organizations")
	}

	orgSlug := ""
	if len(orgs) > 0 {
		names := make([]string, 0, len(orgs)+1)
		for _, o := range orgs {
			names = append(names, o.Name)
		}
		choice, err := m.prompter.Select("Select an organization:", append(names, sandboxOrg), "")
		if err != nil {
			return 0, err
		}
		for _, o := range orgs {
			if o.Name == choice {
				orgSlug = o.Slug
				break
			}
		}
	}

	label := orgSlug
	if label == "" {
		label = "sandbox"
	}
	products, err := ui.Busy(m.ui, "Fetching products for "+label, func() ([]cloud.Product, error) {
		return client.Products(ctx, orgSlug)
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list products")
	}

	var tachyon []cloud.Product
	for _, p := range products {
		if p.PlatformID == cloud.TachyonPlatformID {
			tachyon = append(tachyon, p)
		}
	}

	if len(tachyon) > 0 {
		names := make([]string, 0, len(tachyon)+1)
		for _, p := range tachyon {
			names = append(names, p.Name)
		}
		choice, err := m.prompter.Select("Select a product:", append(names, newProductOption), "")
		if err != nil {
			return 0, err
		}
		for _, p := range tachyon {
			if p.Name == choice {
				slog.Info("product_selected", "run_id", rc.id, "product_id", p.ID, "org", label)
				return p.ID, nil
			}
		}
	}

	return m.createProduct(ctx, client, orgSlug)
}

func (m *Machine) createProduct(ctx context.Context, client *cloud.Client, orgSlug string) (int, error) {
	var name string
	for name == "" {
		n, err := m.prompter.Input("Enter the product name:", "")
		if err != nil {
			return 0, err
		}
		name = strings.TrimSpace(n)
		if name == "" {
			m.ui.Println("You need to provide a product name")
		}
	}

	optIn, err := m.prompter.Input("Would you like to opt in to location services? (y/n):", "y")
	if err != nil {
		return 0, err
	}

	product, err := client.CreateProduct(ctx, cloud.NewProduct{
		Name:          name,
		PlatformID:    cloud.TachyonPlatformID,
		OrgSlug:       orgSlug,
		LocationOptIn: strings.EqualFold(strings.TrimSpace(optIn), "y"),
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to create product")
	}

	m.ui.Printf("Product %s created successfully!\n", product.Name)
	return product.ID, nil
}

func (m *Machine) selectVariant(kind setupconfig.BoardKind) (setupconfig.Variant, error) {
	choices := setupconfig.VariantChoices(kind)
	labels := make([]string, 0, len(choices))
	for _, c := range choices {
		labels = append(labels, c.Label)
	}

	choice, err := m.prompter.Select("Select the OS variant:", labels, "")
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if c.Label == choice {
			return c.Variant, nil
		}
	}
	return "", errors.Newf(errors.KindConfigValidation, "unknown variant %q", choice)
}

// selectCountry defaults to the last country chosen and remembers the answer.
func (m *Machine) selectCountry() (string, error) {
	current := m.userProfile.Country()
	if current == "" {
		current = "USA"
	}

	labels := make([]string, 0, len(setupconfig.SupportedCountries))
	defaultLabel := ""
	for _, c := range setupconfig.SupportedCountries {
		labels = append(labels, c.Name)
		if c.Code == current {
			defaultLabel = c.Name
		}
	}

	choice, err := m.prompter.Select("Select your country:", labels, defaultLabel)
	if err != nil {
		return "", err
	}

	code := ""
	for _, c := range setupconfig.SupportedCountries {
		if c.Name == choice {
			code = c.Code
			break
		}
	}
	if code == "" {
		return "", errors.Newf(errors.KindConfigValidation, "unknown country %q", choice)
	}

	if err := m.userProfile.SetCountry(code); err != nil {
		return "", errors.Wrap(err, "failed to store country")
	}
	if err := m.userProfile.Save(); err != nil {
		return "", err
	}

	if code == setupconfig.OtherCountry {
		m.ui.Println("No cellular profile will be enabled for your device")
	}
	return code, nil
}
