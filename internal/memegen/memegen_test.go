package memegen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memestash/internal/database"
	"memestash/internal/imagesel"
)

type mockProvider struct {
	response       string
	visionResponse string
	calls          int
	visionCalls    int
	lastPrompt     string
	lastImages     []string
}

func (m *mockProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	return m.response, nil
}

func (m *mockProvider) GenerateVision(ctx context.Context, prompt string, imageURLs []string, maxTokens int) (string, error) {
	m.visionCalls++
	m.lastPrompt = prompt
	m.lastImages = imageURLs
	return m.visionResponse, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

type stubStore struct {
	guide *database.StyleGuide
	posts []database.Post
}

func (s *stubStore) GetLatestStyleGuide() (*database.StyleGuide, error) { return s.guide, nil }
func (s *stubStore) GetAnalyzedPosts(limit int) ([]database.Post, error) {
	if limit > 0 && limit < len(s.posts) {
		return s.posts[:limit], nil
	}
	return s.posts, nil
}

func catalogEntries(urls ...string) []imagesel.CatalogEntry {
	var entries []imagesel.CatalogEntry
	for i, url := range urls {
		entries = append(entries, imagesel.CatalogEntry{
			Index:       i + 1,
			URL:         url,
			Description: "a meme image",
		})
	}
	return entries
}

func TestParseTextBlocksStripsMarkers(t *testing.T) {
	provider := &mockProvider{response: "1. first meme\n---\n2. second meme\n---\n   \n"}
	gen := NewGenerator(&stubStore{}, provider)

	items, err := gen.GenerateTextOnly(context.Background(), "cats", "ironic", 2, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first meme", items[0].Text)
	assert.Equal(t, "second meme", items[1].Text)
	assert.Nil(t, items[0].ImageURL)
	assert.Nil(t, items[1].ImageURL)
}

func TestParseTextBlocksBracketedMarker(t *testing.T) {
	items := parseTextBlocks("[1]. bracketed form\n---\n2) paren form")
	require.Len(t, items, 2)
	assert.Equal(t, "bracketed form", items[0].Text)
	assert.Equal(t, "paren form", items[1].Text)
}

func TestParseTextBlocksMarkerAbsentUsesWholeBlock(t *testing.T) {
	items := parseTextBlocks("just a meme without numbering\n---\n\n---\nanother one")
	require.Len(t, items, 2)
	assert.Equal(t, "just a meme without numbering", items[0].Text)
	assert.Equal(t, "another one", items[1].Text)
}

func TestTextOnlyPromptCarriesStyleAndContext(t *testing.T) {
	store := &stubStore{
		guide: &database.StyleGuide{
			Content: database.GuideContent{
				HumorPatterns: []database.GuideHumorPattern{
					{Pattern: "escalating absurdity"},
					{Pattern: "deadpan understatement"},
					{Pattern: "third pattern that should not appear"},
				},
			},
		},
		posts: []database.Post{
			{Text: "when the build passes on the first try"},
		},
	}
	provider := &mockProvider{response: "1. ok"}
	gen := NewGenerator(store, provider)

	_, err := gen.GenerateTextOnly(context.Background(), "deadlines", "absurd", 1, "keep it short")
	require.NoError(t, err)
	assert.Contains(t, provider.lastPrompt, "escalating absurdity")
	assert.Contains(t, provider.lastPrompt, "deadpan understatement")
	assert.NotContains(t, provider.lastPrompt, "third pattern")
	assert.Contains(t, provider.lastPrompt, "when the build passes")
	assert.Contains(t, provider.lastPrompt, "keep it short")
	assert.Contains(t, provider.lastPrompt, "surreal")
}

func TestUnknownStyleFallsBackToIronic(t *testing.T) {
	assert.Equal(t, StyleHint("ironic"), StyleHint("bogus-style"))
	assert.NotEqual(t, StyleHint("ironic"), StyleHint("sarcastic"))
}

func TestImageBlocksTextMarkerAndLabelPosition(t *testing.T) {
	provider := &mockProvider{visionResponse: strings.Join([]string{
		"Image 2:\nTEXT: caption for the second image",
		"Image 1:\nTEXT: caption for the first image",
	}, "\n---\n")}
	gen := NewGenerator(&stubStore{}, provider)

	items, err := gen.GenerateWithImages(context.Background(), "cats", "ironic",
		catalogEntries("https://a.example/1.jpg", "https://a.example/2.jpg"), "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "caption for the second image", items[0].Text)
	assert.Equal(t, "https://a.example/2.jpg", *items[0].ImageURL)
	assert.Equal(t, "caption for the first image", items[1].Text)
	assert.Equal(t, "https://a.example/1.jpg", *items[1].ImageURL)
}

func TestImageBlockWithoutTextMarkerStripsLabel(t *testing.T) {
	items := parseImageBlocks("Image 2: the caption is the rest of the block",
		[]string{"https://a.example/1.jpg", "https://a.example/2.jpg"})
	require.Len(t, items, 1)
	assert.Equal(t, "the caption is the rest of the block", items[0].Text)
	assert.Equal(t, "https://a.example/2.jpg", *items[0].ImageURL)
}

func TestImageBlockWithoutLabelUsesBlockOrdinal(t *testing.T) {
	items := parseImageBlocks("TEXT: first caption\n---\nTEXT: second caption",
		[]string{"https://a.example/1.jpg", "https://a.example/2.jpg"})
	require.Len(t, items, 2)
	assert.Equal(t, "https://a.example/1.jpg", *items[0].ImageURL)
	assert.Equal(t, "https://a.example/2.jpg", *items[1].ImageURL)
}

func TestImageBlockOutOfRangeLabelFallsBackToOrdinal(t *testing.T) {
	items := parseImageBlocks("Image 9:\nTEXT: wild label",
		[]string{"https://a.example/1.jpg"})
	require.Len(t, items, 1)
	assert.Equal(t, "https://a.example/1.jpg", *items[0].ImageURL)
}

func TestImageItemsNeverExceedManifest(t *testing.T) {
	response := strings.Join([]string{
		"Image 1:\nTEXT: one",
		"Image 1:\nTEXT: two",
		"Image 1:\nTEXT: three",
	}, "\n---\n")
	items := parseImageBlocks(response, []string{"https://a.example/1.jpg", "https://a.example/2.jpg"})
	assert.LessOrEqual(t, len(items), 2)
}

func TestImageItemsWithEmptyTextDropped(t *testing.T) {
	items := parseImageBlocks("Image 1:\nTEXT:   \n---\nImage 2:\nTEXT: kept",
		[]string{"https://a.example/1.jpg", "https://a.example/2.jpg"})
	require.Len(t, items, 1)
	assert.Equal(t, "kept", items[0].Text)
	assert.Equal(t, "https://a.example/2.jpg", *items[0].ImageURL)
}

func TestVisionCallAttachesManifestURLsInOrder(t *testing.T) {
	provider := &mockProvider{visionResponse: "Image 1:\nTEXT: hi"}
	gen := NewGenerator(&stubStore{}, provider)

	entries := catalogEntries("https://a.example/1.jpg", "https://a.example/2.jpg", "https://a.example/3.jpg")
	_, err := gen.GenerateWithImages(context.Background(), "cats", "ironic", entries, "")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.visionCalls)
	assert.Equal(t, []string{"https://a.example/1.jpg", "https://a.example/2.jpg", "https://a.example/3.jpg"}, provider.lastImages)
	assert.Contains(t, provider.lastPrompt, "Image 3: a meme image")
}

func TestGenerateWithNoImagesErrors(t *testing.T) {
	gen := NewGenerator(&stubStore{}, &mockProvider{})
	_, err := gen.GenerateWithImages(context.Background(), "cats", "ironic", nil, "")
	assert.Error(t, err)
}
