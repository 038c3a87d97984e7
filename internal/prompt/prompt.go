package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
)

const Default = "bsh> "

// Env supplies the values the prompt escapes expand to.
type Env interface {
	User() string
	Host() string
	WorkDir() string
	Now() time.Time
	Root() bool
}

// Builder expands a prompt template. Supported escapes:
//
//	\u user, \h host, \w working directory, \W its base name,
//	\t time (HH:MM:SS), \$ '#' for root and '$' otherwise, \\ backslash.
type Builder struct {
	template string
	color    *color.Color
	env      Env
}

type Option func(*Builder)

func WithEnv(env Env) Option {
	return func(b *Builder) {
		b.env = env
	}
}

// WithColor paints the prompt with the given attributes.
func WithColor(attrs ...color.Attribute) Option {
	return func(b *Builder) {
		c := color.New(attrs...)
		c.EnableColor()
		b.color = c
	}
}

func NewBuilder(template string, opts ...Option) *Builder {
	if template == "" {
		template = Default
	}

	b := &Builder{
		template: template,
		env:      hostEnv{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Build() string {
	if !strings.Contains(b.template, `\`) {
		return b.paint(b.template)
	}

	dir := b.env.WorkDir()
	sigil := "$"
	if b.env.Root() {
		sigil = "#"
	}

	r := strings.NewReplacer(
		`\\`, `\`,
		`\u`, b.env.User(),
		`\h`, b.env.Host(),
		`\w`, dir,
		`\W`, filepath.Base(dir),
		`\t`, b.env.Now().Format("15:04:05"),
		`\$`, sigil,
	)
	return b.paint(r.Replace(b.template))
}

func (b *Builder) paint(s string) string {
	if b.color == nil {
		return s
	}
	return b.color.Sprint(s)
}

type hostEnv struct{}

func (hostEnv) User() string {
	return os.Getenv("USER")
}

func (hostEnv) Host() string {
	hostname, _ := os.Hostname()
	return hostname
}

func (hostEnv) WorkDir() string {
	dir, _ := os.Getwd()
	return dir
}

func (hostEnv) Now() time.Time {
	return time.Now()
}

func (hostEnv) Root() bool {
	return os.Geteuid() == 0
}
