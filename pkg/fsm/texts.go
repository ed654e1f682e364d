package fsm

import (
	"fmt"
	"strings"

	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
)

const (
	discoverDescription = "Now let's get the device info"
	loginDescription    = "Okay, first up! Checking if you're logged in..."

	userConfigDescription = "Now lets capture some information about how you'd like your device to be configured when it first boots.\n\n" +
		"First, you'll be asked to set a password for the root account on your Tachyon device.\n" +
		"This same password is used for the user \"particle\".\n" +
		"Don't worry if you forget this, you can always reset your device later.\n\n" +
		"Finally you'll be prompted to provide a Wi-Fi network.\n" +
		"This is needed to install the eSIM profile over the air so the device can connect to the 5G cellular network.\n"

	wifiIntro = "\nWi-Fi setup is required to continue when using Particle setup!\n" +
		"This active internet connection is necessary to activate cellular connectivity on your device.\n"

	productDescription = "Next, let's select a Particle product for your Tachyon.\n" +
		"A product will help manage the Tachyon device and keep things organized."

	variantIntro = "Select the variant of the Tachyon operating system to set up.\n"

	countryDescription = "Next, let's configure the cellular connection for your Tachyon!\n" +
		"Select from the list of countries supported for the built in Particle cellular " +
		"connection or select 'Other' if your country is not listed.\n" +
		"For more information, visit: https://developer.particle.io/redirect/tachyon-cellular-setup"

	downloadDescription = "Next, we'll download the Tachyon Operating System image.\n" +
		"Heads up: it's a large file, 3GB! Don't worry, though. The download will resume\n" +
		"if it's interrupted. If you have to kill the CLI, it will pick up where it left. You can also\n" +
		"just let it run in the background. We'll wait for you to be ready when its time to flash the device."

	registerDescription = "Great! The download is complete.\n" +
		"Now, let's register your product on the Particle platform."

	configBlobDescription = "Creating the configuration file to write to the Tachyon device..."

	flashFailedMessage = "\nFlashing failed. Please unplug your device and rerun this. We're going to have to try it again.\n" +
		"If it continues to fail, please select a different USB port or visit https://part.cl/setup-tachyon and the setup link for more information."

	sandboxOrg       = "Sandbox"
	newProductOption = "Create a new product"
)

func flashDescription(slowUSB bool, consoleURL string, warn func(string) string) string {
	var b strings.Builder
	b.WriteString("Okay, last step! We're now flashing the device with the configuration, including the password, Wi-Fi settings, and operating system.\n")
	if slowUSB {
		b.WriteString("Heads up: this is a large image and flashing will take about 8 minutes to complete.\n")
		b.WriteString(warn("\nThe device is connected to a slow USB port. Connect a USB Type-C cable directly to a USB 3.0 port to shorten this step to 2 minutes.\n"))
	} else {
		b.WriteString("Heads up: this is a large image and flashing will take about 2 minutes to complete.\n")
	}
	b.WriteString("\nMeanwhile, you can explore the developer documentation at https://developer.particle.io\n\n")
	fmt.Fprintf(&b, "You can also view your device on the Console at %s\n", consoleURL)
	return b.String()
}

var desktopFinal = "All done! Your Tachyon device is ready to boot to the desktop and will automatically connect to Wi-Fi.\n\n" +
	"To continue:\n" +
	"  - Disconnect the USB-C cable\n" +
	"  - Connect a USB-C Hub with an HDMI monitor, keyboard, and mouse.\n" +
	"  - Power off the device by holding the power button for 3 seconds and releasing.\n" +
	"  - Power on the device by pressing the power button.\n\n" +
	"When the device boots it will:\n" +
	"  - Activate the built-in 5G modem.\n" +
	"  - Connect to the Particle Cloud.\n" +
	"  - Run all system services, including the desktop if an HDMI monitor is connected.\n\n"

var bootingFinal = "All done! Your Tachyon device is now booting into the operating system and will automatically connect to Wi-Fi.\n\n" +
	"It will also:\n" +
	"  - Activate the built-in 5G modem\n" +
	"  - Connect to the Particle Cloud\n" +
	"  - Run all system services, including battery charging\n\n"

// finalMessages picks the closing text by variant. Variants without an entry
// use the headless text.
var finalMessages = map[setupconfig.Variant]string{
	setupconfig.DesktopVariant:  desktopFinal,
	setupconfig.HeadlessVariant: bootingFinal,
	setupconfig.ServerVariant:   bootingFinal,
}

func finalMessage(variant, consoleURL string) string {
	msg, ok := finalMessages[setupconfig.Variant(variant)]
	if !ok {
		msg = bootingFinal
	}
	return msg +
		"For more information about Tachyon, visit our developer site at: https://developer.particle.io!\n\n" +
		"View your device on the Particle Console at: " + consoleURL
}
