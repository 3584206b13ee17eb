package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

// Voice reads presence from the Discord gateway state cache of the voice bot.
type Voice struct {
	session   *discordgo.Session
	guildID   string
	channelID string
	log       *zap.Logger
}

func NewVoice(token, guildID, channelID string, log *zap.Logger) (*Voice, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMembers
	session.StateEnabled = true

	v := &Voice{session: session, guildID: guildID, channelID: channelID, log: log.Named("voice")}
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		v.log.Info("voice bot ready", zap.Int("guilds", len(r.Guilds)))
	})
	return v, nil
}

func (v *Voice) Open() error {
	if err := v.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

func (v *Voice) Close() error { return v.session.Close() }

func (v *Voice) IsBotActive(context.Context) (bool, error) {
	if !v.session.DataReady {
		return false, nil
	}
	if _, err := v.session.State.Guild(v.guildID); err != nil {
		return false, nil
	}
	return true, nil
}

func (v *Voice) IsPlayerInMonitoredChannel(_ context.Context, p types.PlayerID) (bool, error) {
	guild, err := v.session.State.Guild(v.guildID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVoiceUnavailable, err)
	}

	// Copy under the state lock; Member lookups take the lock again.
	v.session.State.RLock()
	var users []string
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == v.channelID {
			users = append(users, vs.UserID)
		}
	}
	v.session.State.RUnlock()

	for _, userID := range users {
		member, err := v.session.State.Member(v.guildID, userID)
		if err != nil {
			continue
		}
		if memberMatches(member, p) {
			return true, nil
		}
	}
	return false, nil
}

// memberMatches compares the guild nickname, global name and username.
func memberMatches(m *discordgo.Member, p types.PlayerID) bool {
	if m == nil {
		return false
	}
	names := []string{m.Nick}
	if m.User != nil {
		names = append(names, m.User.GlobalName, m.User.Username)
	}
	for _, n := range names {
		if n != "" && types.PlayerID(n).Equal(p) {
			return true
		}
	}
	return false
}
