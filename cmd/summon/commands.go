package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/wilhg/summon/pkg/auth"
	"github.com/wilhg/summon/pkg/config"
	"github.com/wilhg/summon/pkg/eval"
	"github.com/wilhg/summon/pkg/mcpclient"
	"github.com/wilhg/summon/pkg/runtime"
	"github.com/wilhg/summon/pkg/stance"
	"github.com/wilhg/summon/pkg/store/entstore"
)

func catalogFlags(flags *pflag.FlagSet) {
	flags.String("model", "gpt-4o", "tokenizer model for the estimates; unknown models fall back to rune counts")
}

func runCatalog(_ context.Context, env *cmdEnv, cfg *config.Config, flags *pflag.FlagSet) error {
	variant, err := cfg.Variant()
	if err != nil {
		return err
	}
	reg, err := stance.NewRegistry(variant)
	if err != nil {
		return err
	}
	model, _ := flags.GetString("model")
	est, err := stance.NewTikTokenEstimator(model)
	unit := "tokens"
	if err != nil {
		est, unit = stance.RuneEstimator, "runes"
	}
	entries, total := stance.Describe(reg, est)

	tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TOOL\tFIELDS\tDESCRIPTION\tSCHEMA\n")
	for _, e := range entries {
		fields := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			name := f.Name
			if !f.Required {
				name += "?"
			}
			fields = append(fields, name+":"+f.Type.Expected())
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", e.Name, strings.Join(fields, ", "), e.DescriptionTokens, e.SchemaTokens)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.stdout, "catalog %s: %d tools, %d %s\n", variant, len(entries), total, unit)
	return err
}

func tokenFlags(flags *pflag.FlagSet) {
	flags.String("login", "", "principal login (required)")
	flags.String("name", "", "display name")
	flags.String("email", "", "email address")
}

func runToken(_ context.Context, env *cmdEnv, cfg *config.Config, flags *pflag.FlagSet) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	login, _ := flags.GetString("login")
	name, _ := flags.GetString("name")
	email, _ := flags.GetString("email")
	if login == "" {
		return errors.New("token: --login is required")
	}
	tok, err := newResolver(cfg).Mint(auth.Principal{Login: login, Name: name, Email: email}, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(env.stdout, tok)
	return err
}

func probeFlags(flags *pflag.FlagSet) {
	flags.String("url", "", "server endpoint; defaults to the local /mcp or /sse for --transport")
	flags.String("transport", string(mcpclient.Streamable), "streamable or sse")
	flags.String("token", "", "bearer token; minted for --login from the configured secret when empty")
	flags.String("login", "probe", "login used when minting a token")
	flags.String("call", "", "tool to call after listing")
	flags.String("args", "{}", "JSON object of arguments for --call")
	flags.Duration("timeout", 30*time.Second, "overall probe timeout")
}

func runProbe(ctx context.Context, env *cmdEnv, cfg *config.Config, flags *pflag.FlagSet) error {
	endpoint, _ := flags.GetString("url")
	transport, _ := flags.GetString("transport")
	token, _ := flags.GetString("token")
	login, _ := flags.GetString("login")
	call, _ := flags.GetString("call")
	rawArgs, _ := flags.GetString("args")
	timeout, _ := flags.GetDuration("timeout")

	if endpoint == "" {
		endpoint = localEndpoint(cfg.Addr, mcpclient.Transport(transport))
	}
	if token == "" {
		if cfg.Auth.Secret == "" {
			return errors.New("probe: pass --token or configure auth.secret")
		}
		var err error
		if token, err = newResolver(cfg).Mint(auth.Principal{Login: login}, cfg.Auth.TokenTTL); err != nil {
			return err
		}
	}
	var args map[string]any
	if call != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Errorf("probe: --args: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	c, err := mcpclient.New(ctx, endpoint, mcpclient.WithBearer(token), mcpclient.WithTransport(mcpclient.Transport(transport)))
	if err != nil {
		return err
	}
	defer c.Close()

	tools, err := c.ListTools(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "session %s: %d tools\n", c.SessionID(), len(tools))
	for _, t := range tools {
		fmt.Fprintf(env.stdout, "  %s\n", t.Name)
	}
	if call == "" {
		return nil
	}
	res, err := c.CallTool(ctx, call, args)
	if err != nil {
		return err
	}
	if res.IsError {
		return fmt.Errorf("probe: %s failed: %s", call, res.Text)
	}
	_, err = fmt.Fprintln(env.stdout, res.Text)
	return err
}

// localEndpoint points at addr on loopback.
func localEndpoint(addr string, t mcpclient.Transport) string {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	path := "/mcp"
	if t == mcpclient.SSE {
		path = "/sse"
	}
	return "http://" + host + path
}

func auditFlags(flags *pflag.FlagSet) {
	flags.String("principal", "", "only records of this login")
	flags.Int("limit", 20, "maximum records; 0 lists all")
	flags.Bool("replay", false, "re-run the records against the configured catalog")
}

func runAudit(ctx context.Context, env *cmdEnv, cfg *config.Config, flags *pflag.FlagSet) error {
	if cfg.Audit.DatabaseURL == "" {
		return errors.New("audit: audit.database_url is not configured")
	}
	principal, _ := flags.GetString("principal")
	limit, _ := flags.GetInt("limit")
	replay, _ := flags.GetBool("replay")

	st, err := entstore.Open(ctx, cfg.Audit.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	enc := json.NewEncoder(env.stdout)
	if !replay {
		recs, err := st.ListAudit(ctx, principal, limit)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if err := enc.Encode(map[string]any{
				"seq":        r.Seq,
				"record_id":  r.RecordID,
				"kind":       r.Kind,
				"principal":  r.PrincipalID,
				"session":    r.SessionID,
				"tool":       r.Tool,
				"parameters": r.Parameters,
				"timestamp":  r.Timestamp.UTC().Format(time.RFC3339Nano),
			}); err != nil {
				return err
			}
		}
		return nil
	}

	variant, err := cfg.Variant()
	if err != nil {
		return err
	}
	reg, err := stance.NewRegistry(variant)
	if err != nil {
		return err
	}
	out, err := eval.ReplayAudit(ctx, runtime.NewEngine(nil), reg, st, principal, limit)
	if err != nil {
		return err
	}
	for _, r := range out {
		line := map[string]any{"seq": r.Record.Seq, "tool": r.Record.Tool, "text": r.Text}
		if r.Err != nil {
			line["error"] = r.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func evalFlags(flags *pflag.FlagSet) {
	flags.String("dir", "", "fixture directory; the built-in fixtures are used when empty")
}

func runEval(ctx context.Context, env *cmdEnv, _ *config.Config, flags *pflag.FlagSet) error {
	dir, _ := flags.GetString("dir")
	var fsys fs.FS = eval.Fixtures
	root := eval.FixturesDir
	if dir != "" {
		fsys, root = os.DirFS(dir), "."
	}
	rep, err := eval.EvaluateCatalogFixtures(ctx, nil, fsys, root)
	if err != nil {
		return err
	}
	for _, d := range rep.Details {
		fmt.Fprintln(env.stdout, "FAIL", d)
	}
	fmt.Fprintf(env.stdout, "%d/%d fixtures passed (score %.2f)\n", rep.Passed, rep.Total, rep.Score())
	if rep.Passed != rep.Total {
		return fmt.Errorf("eval: %d fixtures failed", rep.Total-rep.Passed)
	}
	return nil
}
