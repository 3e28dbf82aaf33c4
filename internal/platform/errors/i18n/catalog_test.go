package i18n

import "testing"

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	fallback := GetCatalog("missing-locale")
	if fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
	if GetCatalog("") != base {
		t.Fatal("expected empty locale to resolve to en-US catalog")
	}
}

func TestGetCatalogMatchesAcceptLanguage(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "exact", header: "pt-BR", want: "pt-BR"},
		{name: "weighted list", header: "fr-CH, pt-BR;q=0.9, en;q=0.8", want: "pt-BR"},
		{name: "language only", header: "pt", want: "pt-BR"},
		{name: "english variant", header: "en-GB", want: "en-US"},
		{name: "unsupported", header: "ja-JP", want: "en-US"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCatalog(tt.header).Locale(); got != tt.want {
				t.Fatalf("locale = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalogsCoverSameCodes(t *testing.T) {
	for code := range enUSMessages {
		if _, ok := ptBRMessages[code]; !ok {
			t.Fatalf("pt-BR catalog missing %s", code)
		}
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if cat.Format("code", nil) != "hello " {
		t.Fatal("expected template to render missing metadata")
	}
}

func TestFormatWithMetadata(t *testing.T) {
	got := GetCatalog("en-US").Format(CodeProviderUnknown, map[string]string{"Provider": "gitlab"})
	if got != "Unknown login provider gitlab" {
		t.Fatalf("format = %q", got)
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}

func TestFormatIgnoresUnknownKeys(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{"code": "request {{.RequestID}}"})
	got := cat.Format("code", map[string]string{"RequestID": "req-1", "Extra": "x"})
	if got != "request req-1" {
		t.Fatalf("format = %q", got)
	}
}
