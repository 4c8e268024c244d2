// matchrelay-cli is the operator tool for the relay: it registers the slash
// commands with Discord and triggers the HTTP maintenance endpoints.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/matchrelay/matchrelay/internal/config"
	"github.com/matchrelay/matchrelay/internal/logger"
	"github.com/matchrelay/matchrelay/internal/version"
)

var (
	configPath string
	apiBaseURL string
)

func main() {
	root := &cobra.Command{
		Use:     "matchrelay-cli",
		Short:   "Operator tool for matchrelay",
		Version: version.GetInfo(),
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml")
	root.PersistentFlags().StringVar(&apiBaseURL, "api", "http://127.0.0.1:8080", "relay API base URL")

	root.AddCommand(registerCmd(), sweepCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// registerCmd creates the application's global slash commands.
func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register the /link, /unlink and /whois commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Discord.BotToken == "" || cfg.Discord.ApplicationID == "" {
				return fmt.Errorf("discord.bot_token and discord.application_id are required")
			}
			session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
			if err != nil {
				return err
			}

			playernameOption := &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "playername",
				Description: "Your player name in the game",
				Required:    true,
			}
			commands := []*discordgo.ApplicationCommand{
				{
					Name:        "link",
					Description: "Link your in-game player name to your Discord account",
					Options:     []*discordgo.ApplicationCommandOption{playernameOption},
				},
				{
					Name:        "unlink",
					Description: "Remove the link for a player name you own",
					Options:     []*discordgo.ApplicationCommandOption{playernameOption},
				},
				{
					Name:        "whois",
					Description: "Show which Discord account a player name is linked to",
					Options:     []*discordgo.ApplicationCommandOption{playernameOption},
				},
			}
			for _, command := range commands {
				created, err := session.ApplicationCommandCreate(cfg.Discord.ApplicationID, "", command)
				if err != nil {
					return fmt.Errorf("register /%s: %w", command.Name, err)
				}
				fmt.Printf("registered /%s (%s)\n", created.Name, created.ID)
			}
			return nil
		},
	}
}

// sweepCmd hits the cleanup endpoint with the shared secret.
func sweepCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Trigger a retention sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := apiBaseURL + "/api/cleanup"
			if days > 0 {
				url += "?days=" + strconv.Itoa(days)
			}
			return callAPI(http.MethodPost, url)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "override the configured max age in days")
	return cmd
}

// exportCmd hits the export endpoint with the shared secret.
func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Trigger the previous-day email export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return callAPI(http.MethodPost, apiBaseURL+"/api/export")
		},
	}
}

func callAPI(method, url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	if cfg.Server.SharedSecret != "" {
		req.Header.Set("X-Shared-Secret", cfg.Server.SharedSecret)
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return nil
}
