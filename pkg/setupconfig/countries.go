package setupconfig

// Country is a country with built-in cellular support.
type Country struct {
	Code string
	Name string
}

// OtherCountry disables the cellular profile.
const OtherCountry = "OTHER"

// SupportedCountries lists the choices of the country prompt, OTHER last.
var SupportedCountries = []Country{
	{"USA", "United States"},
	{"CAN", "Canada"},
	{"MEX", "Mexico"},
	{"GBR", "United Kingdom"},
	{"IRL", "Ireland"},
	{"DEU", "Germany"},
	{"FRA", "France"},
	{"ESP", "Spain"},
	{"ITA", "Italy"},
	{"NLD", "Netherlands"},
	{"BEL", "Belgium"},
	{"AUT", "Austria"},
	{"CHE", "Switzerland"},
	{"DNK", "Denmark"},
	{"SWE", "Sweden"},
	{"NOR", "Norway"},
	{"FIN", "Finland"},
	{"POL", "Poland"},
	{"PRT", "Portugal"},
	{"AUS", "Australia"},
	{"NZL", "New Zealand"},
	{"JPN", "Japan"},
	{OtherCountry, "Other"},
}

// CountryByCode finds a supported country.
func CountryByCode(code string) (Country, bool) {
	for _, c := range SupportedCountries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}
