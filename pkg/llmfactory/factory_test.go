package llmfactory_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/effective-security/toolbind/pkg/llmfactory"
	"github.com/effective-security/toolbind/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	provider string
	model    string
}

func (f *fakeLLM) GetName() string {
	return f.model
}

func (f *fakeLLM) GetProviderType() llms.ProviderType {
	return llms.ProviderType(f.provider)
}

func (f *fakeLLM) GenerateContent(_ context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func useFakeLLM(t *testing.T) *int {
	created := new(int)
	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		*created++
		return &fakeLLM{provider: cfg.Name, model: cfg.FindModel(preferredModels...)}, nil
	}
	t.Cleanup(func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	})
	return created
}

func setTokens(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "fakekey")
	t.Setenv("OPENAI_API_KEY", "fakekey")
	t.Setenv("ANTHROPIC_API_KEY", "fakekey")
}

func Test_Factory(t *testing.T) {
	setTokens(t)
	useFakeLLM(t)

	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, "fakekey", cfg.Providers[0].Token)
	assert.Equal(t, "org-test", cfg.Providers[1].OpenAI.OrgID)

	f := llmfactory.New(cfg)

	check := func(model llms.Model, err error, provider, name string) {
		t.Helper()
		require.NoError(t, err)
		require.NotNil(t, model)
		fm := model.(*fakeLLM)
		assert.Equal(t, name, fm.model)
		assert.Equal(t, provider, fm.provider)
	}

	model, err := f.DefaultModel()
	check(model, err, "gemini", "gemini-2.0-flash")

	model, err = f.ModelByName("gpt-4.1")
	check(model, err, "openai", "gpt-4.1")

	// first known model wins
	model, err = f.ModelByName("gpt-unknown", "claude-haiku-4-5")
	check(model, err, "claude", "claude-haiku-4-5")

	// unknown models fall back to the default
	model, err = f.ModelByName("non-existent-model")
	check(model, err, "gemini", "gemini-2.0-flash")

	model, err = f.ModelByType("OPENAI")
	check(model, err, "openai", "gpt-5-mini")

	model, err = f.ModelByType("anthropic")
	check(model, err, "claude", "claude-sonnet-4-5")

	model, err = f.AssistantModel("phone")
	check(model, err, "claude", "claude-haiku-4-5")

	model, err = f.AssistantModel("other", "gemini-2.5-flash")
	check(model, err, "openai", "gpt-4.1")

	_, err = f.ModelByType("UNSUPPORTED")
	assert.EqualError(t, err, "provider not found for type: UNSUPPORTED")
}

func Test_FactoryDefaults(t *testing.T) {
	useFakeLLM(t)

	_, err := llmfactory.New(&llmfactory.Config{}).DefaultModel()
	assert.EqualError(t, err, "no providers configured")

	cfg := &llmfactory.Config{
		DefaultProvider: "non-existent",
		Providers: []*llmfactory.ProviderConfig{
			{Name: "first", Type: "OPENAI", DefaultModel: "gpt-5-mini"},
			{Name: "second", Type: "ANTHROPIC", DefaultModel: "claude-sonnet-4-5"},
		},
	}
	model, err := llmfactory.New(cfg).DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-mini", model.GetName())

	// no assistant mapping uses the preferred models
	model, err = llmfactory.New(cfg).AssistantModel("phone", "gpt-5-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-mini", model.GetName())
}

func Test_ModelCaching(t *testing.T) {
	created := useFakeLLM(t)

	cfg := &llmfactory.Config{
		Providers: []*llmfactory.ProviderConfig{
			{
				Name:            "openai",
				Type:            "OPENAI",
				AvailableModels: []string{"gpt-5-mini", "gpt-4.1"},
				DefaultModel:    "gpt-5-mini",
			},
		},
	}
	f := llmfactory.New(cfg)

	model1, err := f.ModelByType("OPENAI")
	require.NoError(t, err)
	model2, err := f.ModelByType("OPENAI")
	require.NoError(t, err)
	assert.Same(t, model1, model2)

	model3, err := f.ModelByName("gpt-4.1")
	require.NoError(t, err)
	model4, err := f.ModelByName("gpt-4.1")
	require.NoError(t, err)
	assert.Same(t, model3, model4)

	model5, err := f.DefaultModel()
	require.NoError(t, err)
	model6, err := f.DefaultModel()
	require.NoError(t, err)
	assert.Same(t, model5, model6)

	assert.Equal(t, 3, *created)
}

func Test_Load(t *testing.T) {
	setTokens(t)

	f, err := llmfactory.Load("testdata/llm.yaml")
	require.NoError(t, err)
	require.NotNil(t, f)

	_, err = llmfactory.Load("testdata/non-existent.yaml")
	require.Error(t, err)

	_, err = llmfactory.LoadConfig("testdata/invalid.yaml")
	require.Error(t, err)

	cfg, err := llmfactory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers)
}

func Test_CreateLLM(t *testing.T) {
	tcases := []struct {
		cfg      *llmfactory.ProviderConfig
		provider llms.ProviderType
		model    string
	}{
		{
			cfg:      &llmfactory.ProviderConfig{Type: "openai", Token: "fakekey", DefaultModel: "gpt-4.1", OpenAI: llmfactory.OpenAIConfig{OrgID: "org"}},
			provider: llms.ProviderOpenAI,
			model:    "gpt-4.1",
		},
		{
			cfg:      &llmfactory.ProviderConfig{Type: "ANTHROPIC", Token: "fakekey", BaseURL: "http://localhost:1"},
			provider: llms.ProviderAnthropic,
			model:    "claude-sonnet-4-5",
		},
		{
			cfg:      &llmfactory.ProviderConfig{Type: "GOOGLEAI", Token: "fakekey", AvailableModels: []string{"gemini-2.5-flash"}},
			provider: llms.ProviderGoogleAI,
			model:    "gemini-2.5-flash",
		},
	}
	for _, tc := range tcases {
		t.Run(string(tc.provider), func(t *testing.T) {
			model, err := llmfactory.CreateLLM(tc.cfg, "gemini-2.5-flash")
			require.NoError(t, err)
			assert.Equal(t, tc.provider, model.GetProviderType())
			assert.Equal(t, tc.model, model.GetName())
		})
	}

	_, err := llmfactory.CreateLLM(&llmfactory.ProviderConfig{Type: "bedrock"})
	assert.EqualError(t, err, "unsupported provider type: BEDROCK")
}

func Test_CreateLLM_GoogleAIDefaults(t *testing.T) {
	var lock sync.Mutex
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs, _ := io.ReadAll(r.Body)
		lock.Lock()
		body = string(bs)
		lock.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`))
	}))
	t.Cleanup(srv.Close)

	model, err := llmfactory.CreateLLM(&llmfactory.ProviderConfig{
		Type:        "GOOGLEAI",
		Token:       "fakekey",
		BaseURL:     srv.URL + "/",
		MaxTokens:   512,
		Temperature: 0.5,
		TopP:        0.25,
	})
	require.NoError(t, err)

	resp, err := model.GenerateContent(context.Background(), []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "hi"),
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "ok", resp.Choices[0].Content)

	lock.Lock()
	defer lock.Unlock()
	assert.Contains(t, body, `"maxOutputTokens":512`)
	assert.Contains(t, body, `"temperature":0.5`)
	assert.Contains(t, body, `"topP":0.25`)
}
