package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/infrastructure"
	"showroom_bot/internal/interfaces"
	"showroom_bot/internal/resilience"
)

const DefaultStateTTL = 10 * time.Minute

// StepContext is what prompts, validators and executors see.
type StepContext struct {
	Tenant *entities.Tenant
	Phone  string
	Role   entities.SenderRole
	Fields map[string]string
}

// Step is one wizard question. Validate returns the value stored under Field;
// a *entities.ValidationError re-prompts without advancing.
type Step struct {
	Field    string
	Prompt   func(ctx context.Context, sc StepContext) string
	Validate func(ctx context.Context, sc StepContext, input string) (string, error)
}

// Command is a slash command. A command without steps executes immediately.
type Command struct {
	Name         string
	Aliases      []string
	Summary      string
	OperatorOnly bool
	Steps        []Step
	Execute      func(ctx context.Context, sc StepContext) (entities.Reply, error)
}

// OperatorMachine runs multi-step commands for staff and operators. Messages
// from one phone are serialized by a keyed lock.
type OperatorMachine struct {
	commands map[string]*Command
	names    []string
	states   interfaces.StateStore
	locker   *infrastructure.KeyedLocker
	ttl      time.Duration
	now      func() time.Time
}

func NewOperatorMachine(states interfaces.StateStore, locker *infrastructure.KeyedLocker, ttl time.Duration) *OperatorMachine {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &OperatorMachine{
		commands: make(map[string]*Command),
		states:   states,
		locker:   locker,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *OperatorMachine) Register(cmd *Command) {
	m.commands[cmd.Name] = cmd
	for _, a := range cmd.Aliases {
		m.commands[a] = cmd
	}
	m.names = append(m.names, cmd.Name)
	sort.Strings(m.names)
}

func isCancel(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "cancel", "batal", "/cancel", "/batal":
		return true
	}
	return false
}

// parseCommand splits "/blog mobil listrik" into ("blog", "mobil listrik").
// The argument keeps its line breaks.
func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	body := text[1:]
	idx := strings.IndexFunc(body, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '\r' })
	if idx < 0 {
		return strings.ToLower(body), "", true
	}
	return strings.ToLower(body[:idx]), strings.TrimSpace(body[idx:]), true
}

// Handle processes one operator message. It returns entities.ErrBusy together
// with a resend reply when another message from the same phone holds the lock.
func (m *OperatorMachine) Handle(ctx context.Context, tenant *entities.Tenant, phone string, role entities.SenderRole, text string) (entities.Reply, error) {
	key := resilience.Key(tenant.ID, phone)

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key)
		if err != nil {
			if errors.Is(err, entities.ErrBusy) {
				return entities.TextReply("⏳ Pesan sebelumnya masih diproses. Silakan kirim ulang sebentar lagi."), entities.ErrBusy
			}
			return entities.Reply{}, err
		}
		defer unlock()
	}

	ctx, span := infrastructure.StartSpan(ctx, "operator.handle", attribute.String("tenant", tenant.ID))
	defer span.End()

	sc := StepContext{Tenant: tenant, Phone: phone, Role: role}
	input := strings.TrimSpace(text)
	logger := log.With().Str("tenant", tenant.ID).Str("phone", phone).Str("role", string(role)).Logger()

	st, active := m.states.Get(key)
	if active && st.Expired(m.now()) {
		m.states.Delete(key)
		active = false
	}

	if active {
		cmd := m.commands[st.CurrentCommand]
		if cmd == nil || st.Step >= len(cmd.Steps) {
			m.states.Delete(key)
		} else {
			if isCancel(input) {
				m.states.Delete(key)
				logger.Info().Str("command", cmd.Name).Int("step", st.Step).Msg("Command cancelled")
				return withCommand(entities.TextReply(fmt.Sprintf("❎ Perintah /%s dibatalkan.", cmd.Name)), cmd.Name), nil
			}
			sc.Fields = st.CollectedFields
			return m.answer(ctx, key, cmd, st, sc, input)
		}
	}

	if isCancel(input) {
		return entities.TextReply("ℹ️ Tidak ada perintah yang sedang aktif."), nil
	}

	name, arg, ok := parseCommand(input)
	cmd := m.commands[name]
	if !ok || cmd == nil {
		return entities.TextReply(m.HelpText(role)), nil
	}
	if cmd.OperatorOnly && role != entities.RoleOperator {
		return withCommand(entities.TextReply("🔒 /"+cmd.Name+" hanya untuk owner/admin.\n\n"+m.HelpText(role)), cmd.Name), nil
	}

	logger.Info().Str("command", cmd.Name).Msg("Command started")
	st = &entities.ConversationState{
		TenantID:        tenant.ID,
		Phone:           phone,
		CurrentCommand:  cmd.Name,
		CollectedFields: map[string]string{},
	}
	sc.Fields = st.CollectedFields

	if arg != "" && len(cmd.Steps) > 0 {
		return m.answer(ctx, key, cmd, st, sc, arg)
	}
	return m.advance(ctx, key, cmd, st, sc)
}

// answer validates input against the current step and advances on success.
func (m *OperatorMachine) answer(ctx context.Context, key string, cmd *Command, st *entities.ConversationState, sc StepContext, input string) (entities.Reply, error) {
	step := cmd.Steps[st.Step]
	value, err := step.Validate(ctx, sc, input)
	if err != nil {
		var verr *entities.ValidationError
		note := "❌ " + err.Error()
		if errors.As(err, &verr) {
			note = "⚠️ " + verr.Reason
		} else {
			log.Warn().Err(err).Str("tenant", sc.Tenant.ID).Str("command", cmd.Name).Int("step", st.Step).Msg("Step validation failed")
		}
		st.ExpiresAt = m.now().Add(m.ttl)
		m.states.Put(key, st)
		return withCommand(entities.TextReply(note+"\n\n"+step.Prompt(ctx, sc)), cmd.Name), nil
	}

	st.CollectedFields[step.Field] = value
	st.Step++
	return m.advance(ctx, key, cmd, st, sc)
}

// advance prompts for the next step, or executes the command after the last one.
func (m *OperatorMachine) advance(ctx context.Context, key string, cmd *Command, st *entities.ConversationState, sc StepContext) (entities.Reply, error) {
	if st.Step < len(cmd.Steps) {
		st.ExpiresAt = m.now().Add(m.ttl)
		m.states.Put(key, st)
		return withCommand(entities.TextReply(cmd.Steps[st.Step].Prompt(ctx, sc)), cmd.Name), nil
	}

	m.states.Delete(key)
	reply, err := cmd.Execute(ctx, sc)
	if err != nil {
		log.Error().Err(err).Str("tenant", sc.Tenant.ID).Str("command", cmd.Name).Msg("Command execution failed")
		reply = entities.Reply{Text: "❌ /" + cmd.Name + " gagal: " + operatorError(err), Degraded: true}
	} else {
		log.Info().Str("tenant", sc.Tenant.ID).Str("command", cmd.Name).Msg("Command executed")
	}
	return withCommand(reply, cmd.Name), nil
}

// HelpText lists the commands available to role.
func (m *OperatorMachine) HelpText(role entities.SenderRole) string {
	var sb strings.Builder
	sb.WriteString("🤖 *Perintah yang tersedia:*\n\n")
	for _, name := range m.names {
		cmd := m.commands[name]
		if cmd.OperatorOnly && role != entities.RoleOperator {
			continue
		}
		sb.WriteString(fmt.Sprintf("/%s – %s\n", cmd.Name, cmd.Summary))
	}
	sb.WriteString("\nKetik *batal* untuk membatalkan perintah yang berjalan.")
	return sb.String()
}

func operatorError(err error) string {
	switch {
	case errors.Is(err, entities.ErrDependencyTimeout):
		return "layanan sedang lambat, silakan coba lagi."
	case errors.Is(err, entities.ErrDependencyUnavailable):
		return "layanan sedang tidak tersedia, silakan coba beberapa saat lagi."
	}
	return err.Error()
}

func withCommand(r entities.Reply, name string) entities.Reply {
	r.Metadata.Command = name
	return r
}
