package usecases

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/infrastructure"
	"showroom_bot/internal/resilience"
)

const opPhone = "6281299990000"

type operatorFixture struct {
	machine   *OperatorMachine
	states    *infrastructure.MemoryStateStore
	locker    *infrastructure.KeyedLocker
	content   *fakeContent
	inventory *fakeInventory
	schedule  *fakeScheduling
	reasoning *scriptedReasoning
	tenant    *entities.Tenant
}

func newOperatorFixture(t *testing.T, steps ...func(entities.CompletionRequest) (*entities.Completion, error)) *operatorFixture {
	t.Helper()
	if len(steps) == 0 {
		steps = append(steps, answer("Tips Merawat Mobil Bekas\nGanti oli rutin dan cek kaki-kaki secara berkala."))
	}
	f := &operatorFixture{
		states:    infrastructure.NewMemoryStateStore(time.Minute),
		locker:    infrastructure.NewKeyedLocker(20 * time.Millisecond),
		content:   &fakeContent{drafts: []*entities.Article{{ID: 1, Title: "Promo Lebaran"}}},
		inventory: &fakeInventory{cars: []entities.Car{avanza(), brio()}},
		schedule:  &fakeScheduling{},
		reasoning: &scriptedReasoning{steps: steps},
		tenant:    testTenant(),
	}
	f.machine = NewOperatorMachine(f.states, f.locker, 0)
	RegisterOperatorCommands(f.machine, OperatorDeps{
		Inventory:  f.inventory,
		Scheduling: f.schedule,
		Content:    f.content,
		Reasoning:  f.reasoning,
		Location:   wib,
		Now:        func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, wib) },
	})
	return f
}

func (f *operatorFixture) send(t *testing.T, role entities.SenderRole, text string) entities.Reply {
	t.Helper()
	reply, err := f.machine.Handle(context.Background(), f.tenant, opPhone, role, text)
	require.NoError(t, err)
	return reply
}

func (f *operatorFixture) state() (*entities.ConversationState, bool) {
	return f.states.Get(resilience.Key(f.tenant.ID, opPhone))
}

func TestOperator_BlogWizardSavesDraft(t *testing.T) {
	f := newOperatorFixture(t)

	reply := f.send(t, entities.RoleOperator, "/blog")
	assert.Contains(t, reply.Text, "Tulis topik artikel")
	assert.Equal(t, "blog", reply.Metadata.Command)

	reply = f.send(t, entities.RoleOperator, "Tips merawat mobil bekas")
	assert.Contains(t, reply.Text, "2. Profesional")

	reply = f.send(t, entities.RoleOperator, "2")
	assert.Contains(t, reply.Text, "1. Tips Perawatan")

	reply = f.send(t, entities.RoleOperator, "1")
	assert.Contains(t, reply.Text, "1. Promo Lebaran")

	reply = f.send(t, entities.RoleOperator, "skip")
	assert.Contains(t, reply.Text, "kata kunci")

	st, ok := f.state()
	require.True(t, ok)
	assert.Equal(t, 4, st.Step)
	assert.Equal(t, "profesional", st.CollectedFields["tone"])

	reply = f.send(t, entities.RoleOperator, "perawatan, mobil bekas ,")
	assert.Contains(t, reply.Text, "Draft artikel tersimpan (#2)")
	assert.Contains(t, reply.Text, "*Tips Merawat Mobil Bekas*")
	assert.False(t, reply.Degraded)

	require.Len(t, f.content.drafts, 2)
	draft := f.content.drafts[1]
	assert.Equal(t, "Tips Merawat Mobil Bekas", draft.Title)
	assert.Equal(t, "profesional", draft.Tone)
	assert.Equal(t, "tips perawatan", draft.Category)
	assert.Empty(t, draft.Reference)
	assert.Equal(t, []string{"perawatan", "mobil bekas"}, draft.Keywords)
	assert.Equal(t, opPhone, draft.CreatedBy)

	require.Equal(t, 1, f.reasoning.calls())
	assert.Contains(t, f.reasoning.requests[0].Messages[1].Content, "Topik: Tips merawat mobil bekas")

	_, ok = f.state()
	assert.False(t, ok)
}

func TestOperator_InlineArgumentAnswersFirstStep(t *testing.T) {
	f := newOperatorFixture(t)

	reply := f.send(t, entities.RoleOperator, "/blog mobil listrik bekas")
	assert.Contains(t, reply.Text, "Pilih gaya bahasa")

	st, ok := f.state()
	require.True(t, ok)
	assert.Equal(t, "mobil listrik bekas", st.CollectedFields["prompt"])
}

func TestOperator_InvalidAnswerReprompts(t *testing.T) {
	f := newOperatorFixture(t)

	f.send(t, entities.RoleOperator, "/blog")
	reply := f.send(t, entities.RoleOperator, "abc")
	assert.Contains(t, reply.Text, "⚠️ topik harus 5 sampai 500 karakter")
	assert.Contains(t, reply.Text, "Tulis topik artikel")

	st, ok := f.state()
	require.True(t, ok)
	assert.Zero(t, st.Step)

	f.send(t, entities.RoleOperator, "Review Toyota Avanza 2020")
	reply = f.send(t, entities.RoleOperator, "9")
	assert.Contains(t, reply.Text, "⚠️ pilih angka 1 sampai 4")

	f.send(t, entities.RoleOperator, "3")
	f.send(t, entities.RoleOperator, "2")
	reply = f.send(t, entities.RoleOperator, "ftp://example.com/x")
	assert.Contains(t, reply.Text, "⚠️")

	f.send(t, entities.RoleOperator, "1")
	st, ok = f.state()
	require.True(t, ok)
	assert.Equal(t, "draft #1: Promo Lebaran", st.CollectedFields["reference"])
}

func TestOperator_Cancel(t *testing.T) {
	f := newOperatorFixture(t)

	f.send(t, entities.RoleOperator, "/blog")
	reply := f.send(t, entities.RoleOperator, "Batal")
	assert.Equal(t, "❎ Perintah /blog dibatalkan.", reply.Text)
	_, ok := f.state()
	assert.False(t, ok)

	reply = f.send(t, entities.RoleOperator, "batal")
	assert.Contains(t, reply.Text, "Tidak ada perintah")
}

func TestOperator_CancelAtEveryBlogStep(t *testing.T) {
	answers := []string{"Tips merawat mobil bekas", "2", "1", "skip"}

	for step := 0; step <= len(answers); step++ {
		t.Run(fmt.Sprintf("step %d", step), func(t *testing.T) {
			f := newOperatorFixture(t)
			f.send(t, entities.RoleOperator, "/blog")
			for _, a := range answers[:step] {
				f.send(t, entities.RoleOperator, a)
			}
			st, ok := f.state()
			require.True(t, ok)
			require.Equal(t, step, st.Step)

			reply := f.send(t, entities.RoleOperator, "cancel")
			assert.Equal(t, "❎ Perintah /blog dibatalkan.", reply.Text)
			_, ok = f.state()
			assert.False(t, ok)

			// Idle again: the next message is not taken as a step answer.
			reply = f.send(t, entities.RoleOperator, "2")
			assert.Contains(t, reply.Text, "Perintah yang tersedia")
			_, ok = f.state()
			assert.False(t, ok)
			assert.Len(t, f.content.drafts, 1)
		})
	}
}

func TestOperator_ExpiredStateIsDiscarded(t *testing.T) {
	f := newOperatorFixture(t)
	start := time.Now()
	f.machine.now = func() time.Time { return start }

	f.send(t, entities.RoleOperator, "/blog")
	f.machine.now = func() time.Time { return start.Add(DefaultStateTTL + time.Minute) }

	reply := f.send(t, entities.RoleOperator, "Tips merawat mobil bekas")
	assert.Contains(t, reply.Text, "Perintah yang tersedia")
	assert.Empty(t, f.content.drafts[1:])
}

func TestOperator_RolePermissions(t *testing.T) {
	f := newOperatorFixture(t)

	reply := f.send(t, entities.RoleStaff, "/blog")
	assert.Contains(t, reply.Text, "🔒 /blog hanya untuk owner/admin.")
	_, ok := f.state()
	assert.False(t, ok)

	staffHelp := f.send(t, entities.RoleStaff, "apa saja perintahnya?")
	assert.Contains(t, staffHelp.Text, "/stok")
	assert.NotContains(t, staffHelp.Text, "/blog")
	assert.NotContains(t, staffHelp.Text, "/import")

	operatorHelp := f.send(t, entities.RoleOperator, "/menu")
	assert.Contains(t, operatorHelp.Text, "/blog")
	assert.Contains(t, operatorHelp.Text, "/import")
}

func TestOperator_BusyWhenPhoneLocked(t *testing.T) {
	f := newOperatorFixture(t)
	ctx := context.Background()

	unlock, err := f.locker.Lock(ctx, resilience.Key(f.tenant.ID, opPhone))
	require.NoError(t, err)

	reply, err := f.machine.Handle(ctx, f.tenant, opPhone, entities.RoleOperator, "/stok")
	assert.ErrorIs(t, err, entities.ErrBusy)
	assert.Contains(t, reply.Text, "kirim ulang")

	unlock()
	reply, err = f.machine.Handle(ctx, f.tenant, opPhone, entities.RoleOperator, "/stok")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Stok tersedia: 2 unit")
}

func TestOperator_ImportIsSuppressed(t *testing.T) {
	f := newOperatorFixture(t)
	csv := "kode,merek,model,tahun,harga\nXP01,Mitsubishi,Xpander,2021,230000000"

	reply := f.send(t, entities.RoleOperator, "/import\n"+csv)
	assert.True(t, reply.Suppressed)
	assert.Equal(t, "import", reply.Metadata.Command)
	assert.Equal(t, csv, f.inventory.imported)
}

func TestOperator_Schedule(t *testing.T) {
	f := newOperatorFixture(t)

	reply := f.send(t, entities.RoleStaff, "/jadwal")
	assert.Contains(t, reply.Text, "Tidak ada test drive")

	f.schedule.booked = append(f.schedule.booked, &entities.TestDrive{
		CarCode: "AV01", CustomerName: "Budi", Phone: "628111",
		ScheduledAt: time.Date(2025, 6, 1, 7, 30, 0, 0, time.UTC),
	})
	reply = f.send(t, entities.RoleStaff, "/schedule")
	assert.Contains(t, reply.Text, "*Sun 01 Jun*")
	assert.Contains(t, reply.Text, "• 14:30 [AV01] Budi (628111)")
}

func TestOperator_ExecuteFailureIsReported(t *testing.T) {
	f := newOperatorFixture(t, fail(&entities.DependencyError{Dependency: "reasoning", Kind: entities.KindTimeout, Err: errors.New("deadline")}))

	f.send(t, entities.RoleOperator, "/blog Mobil keluarga terbaik")
	f.send(t, entities.RoleOperator, "1")
	f.send(t, entities.RoleOperator, "2")
	f.send(t, entities.RoleOperator, "https://example.com/ref")
	reply := f.send(t, entities.RoleOperator, "mpv, keluarga")

	assert.True(t, reply.Degraded)
	assert.Contains(t, reply.Text, "❌ /blog gagal: layanan sedang lambat")
	assert.Len(t, f.content.drafts, 1)
}
