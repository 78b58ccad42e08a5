// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

const (
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandStatus = "status"
	CommandRun    = "run"
)

// Option defines command line options. Options left unset keep the value from
// the config file or the built-in default.
type Option struct {
	Config       string `short:"c" long:"config" description:"config file to read"`
	Host         string `short:"s" long:"host" description:"host name items are reported under (default: this machine's hostname)"`
	DBHost       string `short:"h" long:"db-host" description:"MongoDB server host (default: localhost)"`
	DBPort       int    `short:"p" long:"db-port" description:"MongoDB server port (default: 27017)"`
	ZabbixServer string `short:"z" long:"zabbix-server" description:"Zabbix server host, mandatory"`
	ZabbixPort   int    `long:"zabbix-port" description:"Zabbix server trapper port (default: zabbix_sender's)"`
	ZabbixSender string `long:"zabbix-sender" description:"zabbix_sender executable (default: zabbix_sender)"`
	PIDDir       string `long:"pid-dir" description:"directory for the pid and output files (default: /tmp)"`
	Debug        bool   `short:"D" long:"debug" description:"debug mode"`
	NoDaemonize  bool   `short:"N" long:"no-daemonize" description:"stay in the foreground"`
	Version      bool   `short:"v" long:"version" description:"display the version and exit"`
	Help         bool   `long:"help" description:"show this help message"`

	Command string
}

// Parse returns parsed command-line flags in Option struct. args must not
// include the program name.
func Parse(name string, args []string) (*Option, error) {
	opt := &Option{}
	// -h is the database host, so the built-in help flag is not used.
	parser := flags.NewParser(opt, flags.PassDoubleDash)
	parser.Name = name
	parser.Usage = "[OPTIONS] [start|stop|status|run]"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	if opt.Help {
		parser.WriteHelp(os.Stdout)
		return nil, &flags.Error{Type: flags.ErrHelp, Message: "help requested"}
	}

	switch len(rest) {
	case 0:
		opt.Command = CommandStart
	case 1:
		opt.Command = rest[0]
	default:
		return nil, fmt.Errorf("expected at most one command, got %q", rest)
	}

	switch opt.Command {
	case CommandStart, CommandStop, CommandStatus, CommandRun:
	default:
		return nil, fmt.Errorf("unknown command '%s' (expected start, stop, status or run)", opt.Command)
	}

	return opt, nil
}

func IsHelp(err error) bool {
	return flags.WroteHelp(err)
}

// Foreground reports whether the agent must not detach from the terminal.
func (o *Option) Foreground() bool {
	return o.NoDaemonize || o.Command == CommandRun
}
