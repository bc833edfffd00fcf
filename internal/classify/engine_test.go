package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/technews/internal/model"
)

type fakeIndex struct {
	byGUID map[string]*model.Content
	err    error
}

func (f *fakeIndex) FindByGUID(_ context.Context, guid string) (*model.Content, error) {
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.byGUID[guid]; ok {
		return c, nil
	}
	return nil, model.ErrNotFound
}

func testRules() Rules {
	return Rules{
		TitleWeight:         3,
		BodyWeight:          1,
		MinScore:            2,
		SimilarityThreshold: 0.9,
		Blacklist:           []string{"股市", "stock market"},
		Categories: []CategoryRule{
			{Name: "AI", Keywords: []Keyword{{Term: "openai", Weight: 1}, {Term: "llm", Weight: 1}, {Term: "ai", Weight: 1}}},
			{Name: "Technology", Keywords: []Keyword{{Term: "chip", Weight: 1}, {Term: "hardware", Weight: 1}}},
			{Name: "Developer", Keywords: []Keyword{{Term: "golang", Weight: 1}, {Term: "chip", Weight: 1}}},
		},
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testRules())
	require.NoError(t, err)
	return e
}

var (
	broadTech = model.Source{ID: 1, Name: "HN", Category: "Technology", Trust: model.TrustBroad}
	trustedAI = model.Source{ID: 2, Name: "AI Lab", Category: "AI", Trust: model.TrustSpecialized}
)

func TestClassifyAcceptsByKeywords(t *testing.T) {
	e := newEngine(t)
	d, err := e.Classify(context.Background(), &fakeIndex{}, e.NewTitleSet(), broadTech,
		model.Entry{GUID: "g1", Title: "OpenAI ships a new LLM", BodyText: "details"})
	require.NoError(t, err)

	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, "AI", d.Category)
	assert.Equal(t, 6.0, d.Score)
}

func TestClassifyIdentifierMatchIsUpdate(t *testing.T) {
	e := newEngine(t)
	idx := &fakeIndex{byGUID: map[string]*model.Content{"g1": {ID: 42, GUID: "g1"}}}

	d, err := e.Classify(context.Background(), idx, e.NewTitleSet(), broadTech,
		model.Entry{GUID: "g1", Title: "股市今日大涨"})
	require.NoError(t, err)

	assert.Equal(t, Update, d.Verdict)
	assert.Equal(t, int64(42), d.ExistingID)
	assert.Nil(t, d.Rejection)
}

func TestClassifyIndexFailure(t *testing.T) {
	e := newEngine(t)
	_, err := e.Classify(context.Background(), &fakeIndex{err: errors.New("db down")}, nil, broadTech,
		model.Entry{GUID: "g1", Title: "OpenAI"})

	var pe *model.PersistenceError
	require.ErrorAs(t, err, &pe)
}

func TestClassifyRejectsSimilarTitle(t *testing.T) {
	e := newEngine(t)
	titles := e.NewTitleSet("OpenAI 发布新模型")

	d, err := e.Classify(context.Background(), &fakeIndex{}, titles, trustedAI,
		model.Entry{GUID: "other-id", Title: "OpenAI 发布新模型！"})
	require.NoError(t, err)

	assert.Equal(t, Reject, d.Verdict)
	assert.Equal(t, model.ReasonDuplicate, d.Rejection.Reason)
}

func TestClassifySecondEntryInSameCycleIsDuplicate(t *testing.T) {
	e := newEngine(t)
	titles := e.NewTitleSet()
	ctx := context.Background()

	first, err := e.Classify(ctx, &fakeIndex{}, titles, trustedAI, model.Entry{GUID: "a", Title: "OpenAI 发布新模型"})
	require.NoError(t, err)
	second, err := e.Classify(ctx, &fakeIndex{}, titles, trustedAI, model.Entry{GUID: "b", Title: "OpenAI 发布新模型！"})
	require.NoError(t, err)

	assert.Equal(t, Accept, first.Verdict)
	assert.Equal(t, Reject, second.Verdict)
	assert.Equal(t, model.ReasonDuplicate, second.Rejection.Reason)
}

func TestClassifyUntitledEntriesAreKept(t *testing.T) {
	e := newEngine(t)
	titles := e.NewTitleSet()
	ctx := context.Background()

	for _, guid := range []string{"u1", "u2"} {
		d, err := e.Classify(ctx, &fakeIndex{}, titles, trustedAI, model.Entry{GUID: guid, Title: model.UntitledTitle})
		require.NoError(t, err)
		assert.Equal(t, Accept, d.Verdict, guid)
	}
}

func TestClassifyBlacklistWinsOverKeywords(t *testing.T) {
	e := newEngine(t)
	d, err := e.Classify(context.Background(), &fakeIndex{}, e.NewTitleSet(), trustedAI,
		model.Entry{GUID: "g", Title: "OpenAI stock market debut", BodyText: "llm llm llm"})
	require.NoError(t, err)

	assert.Equal(t, Reject, d.Verdict)
	assert.Equal(t, model.ReasonBlacklisted, d.Rejection.Reason)
	assert.Equal(t, "stock market", d.Rejection.Detail)
}

func TestClassifyBlacklistChecksBody(t *testing.T) {
	e := newEngine(t)
	d, err := e.Classify(context.Background(), &fakeIndex{}, nil, broadTech,
		model.Entry{GUID: "g", Title: "Chip hardware roundup", BodyText: "今天股市表现强劲"})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonBlacklisted, d.Rejection.Reason)
}

func TestClassifyTrustedSourceBypassesGate(t *testing.T) {
	e := newEngine(t)
	entry := model.Entry{GUID: "g", Title: "X 公司发布新模型"}

	d, err := e.Classify(context.Background(), &fakeIndex{}, e.NewTitleSet(), trustedAI, entry)
	require.NoError(t, err)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, "AI", d.Category)
	assert.Zero(t, d.Score)

	d, err = e.Classify(context.Background(), &fakeIndex{}, e.NewTitleSet(), broadTech, entry)
	require.NoError(t, err)
	assert.Equal(t, Reject, d.Verdict)
	assert.Equal(t, model.ReasonOffTopic, d.Rejection.Reason)
}

func TestClassifyBroadSourceBlacklistedBeforeRelevance(t *testing.T) {
	e := newEngine(t)
	d, err := e.Classify(context.Background(), &fakeIndex{}, e.NewTitleSet(), broadTech,
		model.Entry{GUID: "g", Title: "股市今日大涨"})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonBlacklisted, d.Rejection.Reason)
}

func TestClassifyTieGoesToDeclarationOrder(t *testing.T) {
	e := newEngine(t)
	// "chip" belongs to both Technology and Developer.
	d, err := e.Classify(context.Background(), &fakeIndex{}, nil, broadTech,
		model.Entry{GUID: "g", Title: "New chip announced"})
	require.NoError(t, err)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, "Technology", d.Category)
}

func TestClassifyTitleOutweighsBody(t *testing.T) {
	e := newEngine(t)
	// One title hit for Developer (3) beats two body hits for Technology (2).
	d, err := e.Classify(context.Background(), &fakeIndex{}, nil, broadTech,
		model.Entry{GUID: "g", Title: "Golang 1.24 released", BodyText: "hardware and more hardware, chip"})
	require.NoError(t, err)
	assert.Equal(t, "Developer", d.Category)
	assert.Equal(t, 4.0, d.Score)
}

func TestClassifyBodyOnlyBelowMinScore(t *testing.T) {
	e := newEngine(t)
	d, err := e.Classify(context.Background(), &fakeIndex{}, nil, broadTech,
		model.Entry{GUID: "g", Title: "Weekly roundup", BodyText: "something about hardware"})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonOffTopic, d.Rejection.Reason)
}

func TestClassifyShortKeywordNeedsWordBoundary(t *testing.T) {
	e := newEngine(t)
	d, err := e.Classify(context.Background(), &fakeIndex{}, nil, broadTech,
		model.Entry{GUID: "g", Title: "Mayor said the plan is ready"})
	require.NoError(t, err)
	assert.Equal(t, Reject, d.Verdict)

	d, err = e.Classify(context.Background(), &fakeIndex{}, nil, broadTech,
		model.Entry{GUID: "g2", Title: "Why AI agents fail"})
	require.NoError(t, err)
	assert.Equal(t, "AI", d.Category)
}

func TestClassifyFallsBackToSummaryText(t *testing.T) {
	e := newEngine(t)
	d, err := e.Classify(context.Background(), &fakeIndex{}, nil, broadTech,
		model.Entry{GUID: "g", Title: "Weekly roundup", Summary: "openai and an llm"})
	require.NoError(t, err)
	assert.Equal(t, "AI", d.Category)
}

func TestClassifyMultiLabel(t *testing.T) {
	r := testRules()
	r.MultiLabel = true
	e, err := NewEngine(r)
	require.NoError(t, err)

	d, err := e.Classify(context.Background(), &fakeIndex{}, nil, trustedAI,
		model.Entry{GUID: "g", Title: "OpenAI designs its own chip"})
	require.NoError(t, err)
	assert.Equal(t, "AI", d.Category)
	assert.Equal(t, []string{"Technology", "Developer"}, d.Extra)
}

func TestNewEngineValidates(t *testing.T) {
	r := testRules()
	r.Categories = append(r.Categories, CategoryRule{Name: "ai", Keywords: []Keyword{{Term: "x", Weight: 1}}})
	_, err := NewEngine(r)
	assert.Error(t, err)

	r = testRules()
	r.Categories[0].Keywords = nil
	_, err = NewEngine(r)
	assert.Error(t, err)

	r = testRules()
	r.SimilarityThreshold = 0
	_, err = NewEngine(r)
	assert.Error(t, err)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "update", Update.String())
	assert.Equal(t, "reject", Reject.String())
}
