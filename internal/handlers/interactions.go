package handlers

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/labstack/echo/v4"

	"github.com/matchrelay/matchrelay/internal/identity"
)

// InteractionsHandler serves Discord slash-command interactions: /link,
// /unlink, /whois. Requests are authenticated by Discord's ed25519 request
// signature, verified before anything else runs.
type InteractionsHandler struct {
	identities *identity.Service
	publicKey  ed25519.PublicKey
	logger     *slog.Logger
}

// NewInteractionsHandler creates the interactions handler. publicKeyHex is
// the application's hex-encoded interaction verification key.
func NewInteractionsHandler(log *slog.Logger, identities *identity.Service, publicKeyHex string) (*InteractionsHandler, error) {
	key, err := hex.DecodeString(strings.TrimSpace(publicKeyHex))
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid interaction public key")
	}
	return &InteractionsHandler{
		identities: identities,
		publicKey:  ed25519.PublicKey(key),
		logger:     log.With(slog.String("handler", "interactions")),
	}, nil
}

// Register mounts POST /api/interactions on the Echo instance.
func (h *InteractionsHandler) Register(e *echo.Echo) {
	e.POST("/api/interactions", h.Handle)
}

// Handle verifies and dispatches one interaction.
func (h *InteractionsHandler) Handle(c echo.Context) error {
	if !discordgo.VerifyInteraction(c.Request(), h.publicKey) {
		return echo.NewHTTPError(http.StatusUnauthorized, "bad signature")
	}

	var interaction discordgo.Interaction
	if err := json.NewDecoder(c.Request().Body).Decode(&interaction); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}

	switch interaction.Type {
	case discordgo.InteractionPing:
		return c.JSON(http.StatusOK, discordgo.InteractionResponse{
			Type: discordgo.InteractionResponsePong,
		})
	case discordgo.InteractionApplicationCommand:
		return h.handleCommand(c, &interaction)
	default:
		return respondEphemeral(c, "Unsupported interaction")
	}
}

func (h *InteractionsHandler) handleCommand(c echo.Context, interaction *discordgo.Interaction) error {
	user := interactionUser(interaction)
	if user == nil {
		return respondEphemeral(c, "Could not identify you")
	}
	isAdmin := interaction.Member != nil &&
		interaction.Member.Permissions&discordgo.PermissionAdministrator != 0

	data := interaction.ApplicationCommandData()
	playername := optionString(data.Options, "playername")
	if playername == "" {
		return respondEphemeral(c, fmt.Sprintf("Usage: /%s playername:<text>", data.Name))
	}
	ctx := c.Request().Context()

	switch data.Name {
	case "link":
		err := h.identities.Link(ctx, playername, identity.Identity{
			UserID:      user.ID,
			Username:    user.Username,
			DisplayName: user.GlobalName,
		})
		switch {
		case errors.Is(err, identity.ErrAlreadyLinkedPlayer):
			return respondEphemeral(c, fmt.Sprintf("**%s** is already linked to another user ❌", playername))
		case errors.Is(err, identity.ErrAlreadyLinkedUser):
			return respondEphemeral(c, "You already have a linked player name ❌")
		case err != nil:
			h.logger.Error("link failed", slog.String("player", playername), slog.Any("error", err))
			return respondEphemeral(c, "Failed to save mapping ❌")
		}
		return respondEphemeral(c, fmt.Sprintf("Linked **%s** to <@%s> ✅", playername, user.ID))

	case "unlink":
		err := h.identities.Unlink(ctx, playername, user.ID, isAdmin)
		switch {
		case errors.Is(err, identity.ErrNotFound):
			return respondEphemeral(c, fmt.Sprintf("**%s** is not linked", playername))
		case errors.Is(err, identity.ErrForbidden):
			return respondEphemeral(c, fmt.Sprintf("**%s** is linked to someone else ❌", playername))
		case err != nil:
			h.logger.Error("unlink failed", slog.String("player", playername), slog.Any("error", err))
			return respondEphemeral(c, "Failed to remove mapping ❌")
		}
		return respondEphemeral(c, fmt.Sprintf("Unlinked **%s** ✅", playername))

	case "whois":
		id, err := h.identities.Lookup(ctx, playername)
		if err != nil {
			h.logger.Error("whois failed", slog.String("player", playername), slog.Any("error", err))
			return respondEphemeral(c, "Lookup failed ❌")
		}
		if id == nil {
			return respondEphemeral(c, fmt.Sprintf("**%s** is not linked", playername))
		}
		return respondEphemeral(c, fmt.Sprintf("**%s** is linked to <@%s>", playername, id.UserID))

	default:
		return respondEphemeral(c, "Unsupported command")
	}
}

func interactionUser(interaction *discordgo.Interaction) *discordgo.User {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	return interaction.User
}

func optionString(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return strings.TrimSpace(opt.StringValue())
		}
	}
	return ""
}

func respondEphemeral(c echo.Context, content string) error {
	return c.JSON(http.StatusOK, discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
