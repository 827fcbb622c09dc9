package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/igolaizola/sunoplayer/pkg/login"
	"github.com/igolaizola/sunoplayer/pkg/suno"
)

const description = `Sign in on the page that was opened in your browser, then open the
developer tools, find a request to studio-api.prod.suno.com and copy the
value of its Authorization header.`

// Surface asks for the token in the terminal.
type Surface struct {
	Accessible bool
	Output     io.Writer
}

func (s *Surface) out() io.Writer {
	if s.Output == nil {
		return os.Stderr
	}
	return s.Output
}

func (s *Surface) Run(ctx context.Context, f *login.Flow) error {
	for {
		var token string
		input := huh.NewInput().
			Title("Suno token").
			Description(description).
			Placeholder("Bearer eyJ...").
			EchoMode(huh.EchoModePassword).
			Value(&token).
			Validate(func(v string) error {
				return suno.ValidateToken(suno.NormalizeToken(v), f.MinTokenLength())
			})
		form := huh.NewForm(huh.NewGroup(input)).WithAccessible(s.Accessible)
		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return login.ErrDismissed
			}
			return err
		}
		err := f.Submit(ctx, token)
		switch {
		case err == nil, errors.Is(err, login.ErrClosed):
			return nil
		case errors.Is(err, suno.ErrInvalidTokenFormat):
			fmt.Fprintln(s.out(), err)
		default:
			return err
		}
	}
}

func (s *Surface) Focus() {
	fmt.Fprintln(s.out(), "login already in progress, paste the token in the open prompt")
}
