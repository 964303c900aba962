package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/declwidgets/declwidgets/internal/cli/config"
)

var (
	initDefaults bool
	initForce    bool
)

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a declwidgets.yaml config file",
		Long: `Write a configuration file, asking for the common settings.

Examples:
  declwidgets init
  declwidgets init --defaults
  declwidgets init deploy/declwidgets.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}

	cmd.Flags().BoolVar(&initDefaults, "defaults", false, "Write the defaults without prompting")
	cmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.FileName + ".yaml"
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := config.Defaults()
	if !initDefaults {
		if err := askConfig(cfg); err != nil {
			return err
		}
	}

	if err := config.Write(path, cfg); err != nil {
		return err
	}

	color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
	return nil
}

func askConfig(cfg *config.Config) error {
	answers := struct {
		Port    string
		BaseURL string `survey:"base_url"`
		Codec   string
		Store   string
		Replay  bool
		Secret  string
	}{}

	questions := []*survey.Question{
		{
			Name:     "port",
			Prompt:   &survey.Input{Message: "Server port:", Default: strconv.Itoa(cfg.Server.Port)},
			Validate: validatePort,
		},
		{
			Name:     "base_url",
			Prompt:   &survey.Input{Message: "Base URL:", Default: cfg.Server.BaseURL},
			Validate: survey.Required,
		},
		{
			Name: "codec",
			Prompt: &survey.Select{
				Message: "Websocket codec:",
				Options: []string{"json", "msgpack"},
				Default: cfg.Transport.Codec,
			},
		},
		{
			Name: "store",
			Prompt: &survey.Select{
				Message: "Channel state store:",
				Options: []string{"memory", "redis"},
				Default: cfg.Store.Backend,
			},
		},
		{
			Name:   "replay",
			Prompt: &survey.Confirm{Message: "Replay channel state to late browsers?", Default: cfg.Channels.ReplayOnConnect},
		},
		{
			Name:   "secret",
			Prompt: &survey.Password{Message: "Websocket token secret (empty disables auth):"},
		},
	}

	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	port, _ := strconv.Atoi(answers.Port)
	cfg.Server.Port = port
	cfg.Server.BaseURL = answers.BaseURL
	cfg.Transport.Codec = answers.Codec
	cfg.Store.Backend = answers.Store
	cfg.Channels.ReplayOnConnect = answers.Replay
	cfg.Server.TokenSecret = answers.Secret

	if cfg.Store.Backend == "redis" {
		prompt := &survey.Input{Message: "Redis address:", Default: cfg.Store.RedisAddr}
		if err := survey.AskOne(prompt, &cfg.Store.RedisAddr, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}
	return nil
}

func validatePort(ans interface{}) error {
	s, _ := ans.(string)
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}
