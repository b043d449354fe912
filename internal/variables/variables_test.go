package variables

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expandd/internal/plugin"
)

type fakeClipboard struct {
	text    string
	ok      bool
	history []string
}

func (f fakeClipboard) CurrentText() (string, bool) { return f.text, f.ok }

func (f fakeClipboard) RecentHistory(n int) []string {
	if n > len(f.history) {
		n = len(f.history)
	}
	return f.history[:n]
}

var fixedNow = time.Date(2026, 7, 4, 9, 5, 3, 120_000_000, time.UTC)

func newTestPipeline(clip ClipboardSource, plugins plugin.Resolver) *Pipeline {
	ctx := NewContext(clip, plugins)
	ctx.SetClock(func() time.Time { return fixedNow })
	ctx.SetUsername(func() string { return "ada" })
	ctx.SetRand(rand.New(rand.NewPCG(1, 2)))
	return NewPipeline(ctx, nil)
}

func TestDateTimeDefaults(t *testing.T) {
	p := NewPipeline(nil, nil)
	assert.Regexp(t, regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`), p.Render("{date}", ""))
	assert.Regexp(t, regexp.MustCompile(`^\d{2}:\d{2}$`), p.Render("{time}", ""))
	assert.Regexp(t, regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}$`), p.Render("{datetime}", ""))

	fixed := newTestPipeline(nil, nil)
	assert.Equal(t, "04.07.2026 | 09:05 | 04.07.2026 09:05", fixed.Render("{date} | {time} | {datetime}", ""))
}

func TestDateCustomFormats(t *testing.T) {
	p := newTestPipeline(nil, nil)
	tests := []struct {
		in   string
		want string
	}{
		{"{date:yyyy-MM-dd}", "2026-07-04"},
		{"{date:dddd, MMMM d}", "Saturday, July 4"},
		{"{date:ddd MMM yy}", "Sat Jul 26"},
		{"{time:HH:mm:ss}", "09:05:03"},
		{"{time:h:mm tt}", "9:05 AM"},
		{"{time:HH:mm:ss.fff}", "09:05:03.120"},
		{"{time:ss.FFF}", "03.12"},
		{"{datetime:yyyy-MM-dd'T'HH:mm}", "2026-07-04T09:05"},
		{"{date:2006/01/02}", "2026/07/04"},
		{"{time:zzz}", "+00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Render(tt.in, ""))
		})
	}
}

func TestUsername(t *testing.T) {
	p := newTestPipeline(nil, nil)
	assert.Equal(t, "hi ada", p.Render("hi {username}", ""))
}

func TestClipboard(t *testing.T) {
	clip := fakeClipboard{text: "copied", ok: true, history: []string{"newest", "older", "oldest"}}
	p := newTestPipeline(clip, nil)

	assert.Equal(t, "[copied]", p.Render("[{clipboard}]", ""))
	assert.Equal(t, "newest|older|oldest|", p.Render("{clipboard_history:1}|{clipboard_history:2}|{clipboard_history:3}|{clipboard_history:4}", ""))
	assert.Equal(t, "", p.Render("{clipboard_history:0}", ""))

	unavailable := newTestPipeline(fakeClipboard{}, nil)
	assert.Equal(t, "[]", unavailable.Render("[{clipboard}]", ""))

	none := newTestPipeline(nil, nil)
	assert.Equal(t, "[][]", none.Render("[{clipboard}][{clipboard_history:1}]", ""))
}

func TestRandom(t *testing.T) {
	p := newTestPipeline(nil, nil)
	assert.Equal(t, "5", p.Render("{random:5-5}", ""))
	assert.Equal(t, "0", p.Render("{random:0-0}", ""))
	assert.Equal(t, "-3", p.Render("{random:-3--3}", ""))

	for i := 0; i < 200; i++ {
		v := p.Render("{random}", "")
		n := mustAtoi(t, v)
		require.GreaterOrEqual(t, n, 0)
		require.LessOrEqual(t, n, 100)

		n = mustAtoi(t, p.Render("{random:10-12}", ""))
		require.True(t, n >= 10 && n <= 12, n)

		n = mustAtoi(t, p.Render("{random:12-10}", ""))
		require.True(t, n >= 10 && n <= 12, "reversed bounds are swapped")
	}

	assert.Equal(t, "{random:a-b}", p.Render("{random:a-b}", ""))
}

func TestRandomExtremeBounds(t *testing.T) {
	p := newTestPipeline(nil, nil)
	ranges := []string{
		"{random:0-9223372036854775807}",
		"{random:-9223372036854775808-9223372036854775807}",
		"{random:-9223372036854775808--9223372036854775808}",
	}
	for _, tmpl := range ranges {
		for i := 0; i < 50; i++ {
			out := p.Render(tmpl, "")
			_, err := strconv.ParseInt(out, 10, 64)
			require.NoError(t, err, "%s rendered %q", tmpl, out)
		}
	}
	assert.Equal(t, "-9223372036854775808", p.Render(ranges[2], ""))

	for i := 0; i < 50; i++ {
		n, err := strconv.ParseInt(p.Render(ranges[0], ""), 10, 64)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, int64(0))
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	var n int
	neg := strings.HasPrefix(s, "-")
	for _, r := range strings.TrimPrefix(s, "-") {
		require.True(t, r >= '0' && r <= '9', "not a number: %q", s)
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func TestUUID(t *testing.T) {
	p := newTestPipeline(nil, nil)
	out := p.Render("{uuid} {uuid}", "")
	parts := strings.Split(out, " ")
	require.Len(t, parts, 2)
	uuidRe := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	assert.Regexp(t, uuidRe, parts[0])
	assert.NotEqual(t, parts[0], parts[1])
}

func TestCount(t *testing.T) {
	p := newTestPipeline(nil, nil)
	assert.Equal(t, "1", p.Render("{count}", "s1"))
	assert.Equal(t, "2", p.Render("{count}", "s1"))
	assert.Equal(t, "3", p.Render("{count}", "s1"))
	assert.Equal(t, "1", p.Render("{count}", "s2"), "counters are per snippet")

	assert.Equal(t, "#4 #4", p.Render("#{count} #{count}", "s1"), "one increment per expansion")

	assert.Equal(t, "1", p.Render("{count:invoice}", "s1"))
	assert.Equal(t, "2", p.Render("{count:invoice}", "s2"), "named counters are shared")
	assert.Equal(t, "1", p.Render("{count:other}", "s1"))
	assert.Equal(t, "item 3, item 4", p.Render("item {count:invoice}, item {count:invoice}", "s1"),
		"named counters advance per occurrence")

	assert.Equal(t, "{count}", p.Render("{count}", ""), "no snippet, no counter")

	ctx := p.Context()
	assert.Equal(t, 4, ctx.Counter("s1"))
	ctx.ResetCounter("s1")
	assert.Equal(t, "1", p.Render("{count}", "s1"))
	assert.Equal(t, 4, ctx.NamedCounter("invoice"))
	ctx.ResetNamedCounter("invoice")
	assert.Equal(t, "1", p.Render("{count:invoice}", ""))
	ctx.ResetAll()
	assert.Equal(t, 0, ctx.Counter("s2"))
	assert.Equal(t, 0, ctx.NamedCounter("other"))
}

func TestIf(t *testing.T) {
	p := newTestPipeline(nil, nil)
	tests := map[string]string{
		"{if:0:Y:N}":        "N",
		"{if:anything:Y:N}": "Y",
		"{if:false:Y:N}":    "N",
		"{if:FALSE:Y:N}":    "N",
		"{if: :Y:N}":        "N",
		"{if::Y:N}":         "N",
		"{if:1:Y:N}":        "Y",
		"{if:yes:a:b:c}":    "a",
		"{if:x:Y}":          "{if:x:Y}",
	}
	for in, want := range tests {
		assert.Equal(t, want, p.Render(in, ""), in)
	}
}

func TestRepeat(t *testing.T) {
	p := newTestPipeline(nil, nil)
	assert.Equal(t, "ababab", p.Render("{repeat:ab:3}", ""))
	assert.Equal(t, "", p.Render("{repeat:x:0}", ""))
	assert.Equal(t, "a:ba:b", p.Render("{repeat:a:b:2}", ""))
	assert.Equal(t, "{repeat:x:-1}", p.Render("{repeat:x:-1}", ""))
	assert.Equal(t, "{repeat:x:y}", p.Render("{repeat:x:y}", ""))
}

func TestCursorIsLeftAlone(t *testing.T) {
	calls := 0
	res := plugin.ResolverFunc(func(string, map[string]string) (string, bool) {
		calls++
		return "X", true
	})
	p := newTestPipeline(nil, res)
	assert.Equal(t, "Dear {cursor}, X", p.Render("Dear {cursor}, {name}", ""))
	assert.Equal(t, 1, calls)
}

func TestPluginFallback(t *testing.T) {
	var seen []string
	res := plugin.ResolverFunc(func(name string, params map[string]string) (string, bool) {
		seen = append(seen, name+"("+params["city"]+")")
		if name == "weather" {
			return "sunny in " + params["city"], true
		}
		return "", false
	})
	p := newTestPipeline(nil, res)

	out := p.Render("{weather:city=Oslo} {unknown} {firstname}", "", "firstname")
	assert.Equal(t, "sunny in Oslo {unknown} {firstname}", out)
	assert.Equal(t, []string{"weather(Oslo)", "unknown()"}, seen, "one lookup per tag, reserved names skipped")

	noPlugins := newTestPipeline(nil, nil)
	assert.Equal(t, "{mystery}", noPlugins.Render("{mystery}", ""))
}

func TestStageOrder(t *testing.T) {
	p := newTestPipeline(nil, nil)
	assert.Equal(t, []string{
		"date", "time", "datetime", "username", "clipboard", "clipboard_history",
		"random", "uuid", "count", "if", "repeat", "plugin",
	}, p.Stages())

	// The outer braces are not a tag until repeat has run, and if never
	// runs again.
	assert.Equal(t, "{if:1:xx:no}", p.Render("{if:1:{repeat:x:2}:no}", ""))
	// Earlier stage output is visible to later stages.
	assert.Equal(t, "ada-ada-", p.Render("{repeat:{username}-:2}", ""))
}

func TestPanickingStageIsContained(t *testing.T) {
	res := plugin.ResolverFunc(func(string, map[string]string) (string, bool) { panic("boom") })
	p := newTestPipeline(nil, res)
	assert.Equal(t, "{x} 5", p.Render("{x} {random:5-5}", ""))
}

func TestPlainTextUntouched(t *testing.T) {
	p := newTestPipeline(nil, nil)
	assert.Equal(t, "be right back", p.Render("be right back", ""))
	assert.Equal(t, "{ not a tag } {1abc}", p.Render("{ not a tag } {1abc}", ""))
}

func TestFillFields(t *testing.T) {
	out := FillFields("Hi {name}, re: {topic}. {name}!", map[string]string{
		"name":  "Bob {topic}",
		"topic": "lunch",
	})
	assert.Equal(t, "Hi Bob {topic}, re: lunch. Bob {topic}!", out)
	assert.Equal(t, "x", FillFields("x", nil))
}

func TestParseTags(t *testing.T) {
	tags := ParseTags("{date} {if:a:b:c} {x:}")
	require.Len(t, tags, 3)
	assert.Equal(t, Tag{Name: "date", Raw: "{date}"}, tags[0])
	assert.Equal(t, Tag{Name: "if", Arg: "a:b:c", HasArg: true, Raw: "{if:a:b:c}"}, tags[1])
	assert.True(t, tags[2].HasArg)
	assert.Empty(t, tags[2].Arg)
}

func TestTruthy(t *testing.T) {
	for _, c := range []string{"", " ", "\t", "false", "False", "0"} {
		assert.False(t, Truthy(c), "%q", c)
	}
	for _, c := range []string{"1", "true", "no", "00", "x"} {
		assert.True(t, Truthy(c), "%q", c)
	}
}
