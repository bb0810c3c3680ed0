// Command e1000emu runs the e1000 behavioral model against a host TAP
// interface, as a standalone demo of the package outside of a full guest.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vnet-systems/e1000emu/e1000"
	"github.com/vnet-systems/e1000emu/hostdev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "e1000emu",
		Short: "Run a standalone e1000 NIC emulation against a host TAP device",
	}

	root.PersistentFlags().String("tap", "tap0", "name of the host TAP interface to bind")
	root.PersistentFlags().Uint64("mem", 64<<20, "guest memory arena size, in bytes")
	root.PersistentFlags().String("mac", "52:54:00:12:34:56", "station MAC address")
	root.PersistentFlags().Bool("mitigate", true, "enable ITR-based interrupt mitigation")
	root.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	viper.BindPFlags(root.PersistentFlags())
	viper.SetEnvPrefix("E1000EMU")
	viper.AutomaticEnv()

	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Bring up the NIC and bridge frames to/from the TAP interface",
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	log := newLogger(viper.GetString("log-level"))

	mac, err := parseMAC(viper.GetString("mac"))
	if err != nil {
		return err
	}

	host, err := hostdev.NewHost(viper.GetUint64("mem"), viper.GetString("tap"), 11, log)
	if err != nil {
		return fmt.Errorf("e1000emu: %w", err)
	}
	defer host.Close()

	device := e1000.New(host, viper.GetBool("mitigate"))
	device.SetLogger(log)
	device.SetEthernetAddress(mac)
	host.Bind(device)

	log.WithField("tap", viper.GetString("tap")).Info("e1000emu: NIC online, bridging frames")
	host.StartPolling()

	select {}
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x",
		&mac[0], &mac[1], &mac[2], &mac[3], &mac[4], &mac[5])
	if err != nil || n != 6 {
		return mac, fmt.Errorf("e1000emu: invalid mac address %q", s)
	}
	return mac, nil
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return logrus.NewEntry(l)
}
