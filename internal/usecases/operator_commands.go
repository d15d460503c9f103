package usecases

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/interfaces"
)

// OperatorDeps are the collaborators the built-in commands use.
type OperatorDeps struct {
	Inventory  interfaces.Inventory
	Scheduling interfaces.Scheduling
	Content    interfaces.ContentStore
	Reasoning  interfaces.ReasoningProvider
	Location   *time.Location
	Now        func() time.Time
}

var (
	blogTones      = []string{"santai", "profesional", "persuasif", "informatif"}
	blogCategories = []string{"tips perawatan", "review mobil", "promo", "berita otomotif"}
)

const (
	maxKeywords     = 10
	recentDraftsMax = 5
)

// RegisterOperatorCommands installs /blog, /import, /stok, /jadwal and /help.
func RegisterOperatorCommands(m *OperatorMachine, d OperatorDeps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.FixedZone("WIB", 7*3600)
	}
	c := &operatorCommands{d}

	m.Register(c.blog())
	m.Register(c.importCars())
	m.Register(&Command{Name: "stok", Aliases: []string{"stock"}, Summary: "ringkasan stok unit tersedia", Execute: c.stock})
	m.Register(&Command{Name: "jadwal", Aliases: []string{"schedule"}, Summary: "test drive hari ini dan besok", Execute: c.schedule})
	m.Register(&Command{
		Name:    "help",
		Aliases: []string{"bantuan", "menu"},
		Summary: "daftar perintah",
		Execute: func(_ context.Context, sc StepContext) (entities.Reply, error) {
			return entities.TextReply(m.HelpText(sc.Role)), nil
		},
	})
}

type operatorCommands struct {
	OperatorDeps
}

func staticPrompt(text string) func(context.Context, StepContext) string {
	return func(context.Context, StepContext) string { return text }
}

func numberedPrompt(title string, options []string) func(context.Context, StepContext) string {
	var sb strings.Builder
	sb.WriteString(title + "\n")
	for i, o := range options {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, capitalize(o)))
	}
	sb.WriteString("\nBalas dengan angka.")
	return staticPrompt(sb.String())
}

// choice validates a 1-based option number.
func choice(field string, options []string) func(context.Context, StepContext, string) (string, error) {
	return func(_ context.Context, _ StepContext, input string) (string, error) {
		n, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || n < 1 || n > len(options) {
			return "", &entities.ValidationError{Field: field, Reason: fmt.Sprintf("pilih angka 1 sampai %d", len(options))}
		}
		return options[n-1], nil
	}
}

func (c *operatorCommands) blog() *Command {
	return &Command{
		Name:         "blog",
		Aliases:      []string{"artikel"},
		Summary:      "buat draft artikel (topik → gaya → kategori → referensi → kata kunci)",
		OperatorOnly: true,
		Steps: []Step{
			{
				Field:  "prompt",
				Prompt: staticPrompt("📝 Tulis topik artikel yang ingin dibuat:"),
				Validate: func(_ context.Context, _ StepContext, input string) (string, error) {
					n := len([]rune(input))
					if n < 5 || n > 500 {
						return "", &entities.ValidationError{Field: "prompt", Reason: "topik harus 5 sampai 500 karakter"}
					}
					return input, nil
				},
			},
			{Field: "tone", Prompt: numberedPrompt("🎨 Pilih gaya bahasa:", blogTones), Validate: choice("tone", blogTones)},
			{Field: "category", Prompt: numberedPrompt("📂 Pilih kategori:", blogCategories), Validate: choice("category", blogCategories)},
			{Field: "reference", Prompt: c.referencePrompt, Validate: c.validateReference},
			{
				Field:    "keywords",
				Prompt:   staticPrompt("🔑 Masukkan kata kunci, pisahkan dengan koma (maks. 10):"),
				Validate: validateKeywords,
			},
		},
		Execute: c.generateArticle,
	}
}

func (c *operatorCommands) recentDrafts(ctx context.Context, tenantID string) []entities.Article {
	if c.Content == nil {
		return nil
	}
	drafts, err := c.Content.RecentDrafts(ctx, tenantID, recentDraftsMax)
	if err != nil {
		return nil
	}
	return drafts
}

func (c *operatorCommands) referencePrompt(ctx context.Context, sc StepContext) string {
	var sb strings.Builder
	sb.WriteString("🔗 Referensi (opsional):\n")
	for i, a := range c.recentDrafts(ctx, sc.Tenant.ID) {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, a.Title))
	}
	sb.WriteString("\nBalas angka draft di atas, kirim URL, atau ketik *skip*.")
	return sb.String()
}

func (c *operatorCommands) validateReference(ctx context.Context, sc StepContext, input string) (string, error) {
	in := strings.TrimSpace(input)
	switch strings.ToLower(in) {
	case "skip", "lewati", "-":
		return "", nil
	}
	if u, err := url.ParseRequestURI(in); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return in, nil
	}
	if n, err := strconv.Atoi(in); err == nil {
		drafts := c.recentDrafts(ctx, sc.Tenant.ID)
		if n >= 1 && n <= len(drafts) {
			a := drafts[n-1]
			return fmt.Sprintf("draft #%d: %s", a.ID, a.Title), nil
		}
	}
	return "", &entities.ValidationError{Field: "reference", Reason: "balas angka draft, URL (http/https), atau skip"}
}

func validateKeywords(_ context.Context, _ StepContext, input string) (string, error) {
	var keywords []string
	for _, part := range strings.Split(input, ",") {
		kw := strings.TrimSpace(part)
		if kw == "" {
			continue
		}
		if n := len([]rune(kw)); n < 2 || n > 40 {
			return "", &entities.ValidationError{Field: "keywords", Reason: fmt.Sprintf("kata kunci %q harus 2 sampai 40 karakter", kw)}
		}
		keywords = append(keywords, kw)
	}
	if len(keywords) == 0 || len(keywords) > maxKeywords {
		return "", &entities.ValidationError{Field: "keywords", Reason: "masukkan 1 sampai 10 kata kunci"}
	}
	return strings.Join(keywords, ", "), nil
}

func (c *operatorCommands) generateArticle(ctx context.Context, sc StepContext) (entities.Reply, error) {
	f := sc.Fields
	var prompt strings.Builder
	prompt.WriteString("Topik: " + f["prompt"] + "\n")
	prompt.WriteString("Gaya bahasa: " + f["tone"] + "\n")
	prompt.WriteString("Kategori: " + f["category"] + "\n")
	if f["reference"] != "" {
		prompt.WriteString("Referensi: " + f["reference"] + "\n")
	}
	prompt.WriteString("Kata kunci: " + f["keywords"] + "\n")
	prompt.WriteString("\nBaris pertama adalah judul, lalu isi artikel 300-600 kata.")

	comp, err := c.Reasoning.Complete(ctx, entities.CompletionRequest{Messages: []entities.ChatMessage{
		{Role: entities.ChatSystem, Content: fmt.Sprintf("Kamu penulis konten untuk showroom mobil %s. Tulis artikel blog berbahasa Indonesia yang SEO-friendly.", sc.Tenant.DisplayName)},
		{Role: entities.ChatUser, Content: prompt.String()},
	}})
	if err != nil {
		return entities.Reply{}, fmt.Errorf("generate article: %w", err)
	}
	if comp == nil {
		return entities.Reply{}, fmt.Errorf("artikel kosong")
	}
	title, body := splitArticle(comp.Text)
	if body == "" {
		return entities.Reply{}, fmt.Errorf("artikel kosong")
	}

	article := &entities.Article{
		TenantID:  sc.Tenant.ID,
		Title:     title,
		Body:      body,
		Tone:      f["tone"],
		Category:  f["category"],
		Reference: f["reference"],
		Keywords:  strings.Split(f["keywords"], ", "),
		CreatedBy: sc.Phone,
	}
	if err := c.Content.SaveDraft(ctx, article); err != nil {
		return entities.Reply{}, fmt.Errorf("save draft: %w", err)
	}
	return entities.TextReply(fmt.Sprintf("✅ Draft artikel tersimpan (#%d)\n*%s*\n\n%s", article.ID, article.Title, preview(body, 280))), nil
}

// splitArticle takes the first non-empty line as the title.
func splitArticle(text string) (string, string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 {
		return "", ""
	}
	title := strings.TrimSpace(strings.Trim(lines[0], "#* "))
	body := strings.TrimSpace(strings.Join(lines[1:], "\n"))
	if body == "" {
		body, title = title, preview(title, 60)
	}
	return title, body
}

func capitalize(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func (c *operatorCommands) importCars() *Command {
	return &Command{
		Name:         "import",
		Aliases:      []string{"impor"},
		Summary:      "impor stok dari CSV",
		OperatorOnly: true,
		Steps: []Step{{
			Field:  "csv",
			Prompt: staticPrompt("📥 Kirim data stok dalam format CSV.\nHeader wajib: kode, merek, model, tahun, harga\nOpsional: varian, transmisi, km, warna, status, deskripsi, foto"),
			Validate: func(_ context.Context, _ StepContext, input string) (string, error) {
				lines := 0
				for _, l := range strings.Split(input, "\n") {
					if strings.TrimSpace(l) != "" {
						lines++
					}
				}
				if lines < 2 || !strings.Contains(input, ",") {
					return "", &entities.ValidationError{Field: "csv", Reason: "CSV butuh baris header dan minimal satu baris data"}
				}
				return input, nil
			},
		}},
		Execute: func(ctx context.Context, sc StepContext) (entities.Reply, error) {
			n, err := c.Inventory.ImportCars(ctx, sc.Tenant.ID, strings.NewReader(sc.Fields["csv"]))
			if err != nil {
				return entities.Reply{}, err
			}
			log.Info().Str("tenant", sc.Tenant.ID).Int("imported", n).Msg("Inventory imported")
			return entities.SuppressedReply(), nil
		},
	}
}

func (c *operatorCommands) stock(ctx context.Context, sc StepContext) (entities.Reply, error) {
	total, err := c.Inventory.CountAvailable(ctx, sc.Tenant.ID)
	if err != nil {
		return entities.Reply{}, err
	}
	if total == 0 {
		return entities.TextReply("📦 Belum ada unit tersedia."), nil
	}
	cars, err := c.Inventory.SearchCars(ctx, sc.Tenant.ID, entities.CarQuery{Limit: 10})
	if err != nil {
		return entities.Reply{}, err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📦 *Stok tersedia: %d unit*\n\n", total))
	for _, car := range cars {
		sb.WriteString(FormatCarLine(car) + "\n")
	}
	if total > len(cars) {
		sb.WriteString(fmt.Sprintf("\n...dan %d unit lainnya.", total-len(cars)))
	}
	return entities.TextReply(sb.String()), nil
}

func (c *operatorCommands) schedule(ctx context.Context, sc StepContext) (entities.Reply, error) {
	now := c.Now().In(c.Location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.Location)
	to := from.AddDate(0, 0, 2)

	drives, err := c.Scheduling.UpcomingTestDrives(ctx, sc.Tenant.ID, from, to)
	if err != nil {
		return entities.Reply{}, err
	}
	if len(drives) == 0 {
		return entities.TextReply("📅 Tidak ada test drive hari ini dan besok."), nil
	}

	var sb strings.Builder
	sb.WriteString("📅 *Jadwal test drive*\n")
	day := ""
	for _, td := range drives {
		at := td.ScheduledAt.In(c.Location)
		if d := at.Format("Mon 02 Jan"); d != day {
			day = d
			sb.WriteString("\n*" + d + "*\n")
		}
		sb.WriteString(fmt.Sprintf("• %s [%s] %s (%s)\n", at.Format("15:04"), td.CarCode, td.CustomerName, td.Phone))
	}
	return entities.TextReply(sb.String()), nil
}
