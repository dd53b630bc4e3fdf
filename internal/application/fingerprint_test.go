package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

func sampleView() ElementView {
	born := time.Date(1955, 6, 8, 0, 0, 0, 0, time.UTC)
	wiki := "https://en.wikipedia.org/wiki/Tim_Berners-Lee"
	return ElementView{
		Element: domain.Element{ID: 4, Kind: domain.KindPerson, Name: "Tim Berners-Lee", BirthDate: &born, WikiURL: &wiki},
		Related: map[string][]uint{"entities": {9, 2}, "products": {}},
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	a, err := Fingerprint(sampleView())
	require.NoError(t, err)
	b, err := Fingerprint(sampleView())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	reordered := sampleView()
	reordered.Related["entities"] = []uint{2, 9}
	c, err := Fingerprint(reordered)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestFingerprintTracksFieldsAndRelations(t *testing.T) {
	base, err := Fingerprint(sampleView())
	require.NoError(t, err)

	renamed := sampleView()
	renamed.Name = "TimBL"
	linked := sampleView()
	linked.Related["products"] = []uint{11}
	cleared := sampleView()
	cleared.WikiURL = nil
	touched := sampleView()
	touched.UpdatedAt = time.Now()

	for name, view := range map[string]ElementView{"renamed": renamed, "linked": linked, "cleared": cleared} {
		got, err := Fingerprint(view)
		require.NoError(t, err)
		assert.NotEqual(t, base, got, name)
	}
	got, err := Fingerprint(touched)
	require.NoError(t, err)
	assert.Equal(t, base, got, "timestamps are not part of the projection")
}

func TestFingerprintNormalizesUnicode(t *testing.T) {
	composed := sampleView()
	composed.Name = "Poincar\u00e9"
	decomposed := sampleView()
	decomposed.Name = "Poincare\u0301"

	a, err := Fingerprint(composed)
	require.NoError(t, err)
	b, err := Fingerprint(decomposed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProjectShape(t *testing.T) {
	out := Project(sampleView())
	assert.Equal(t, "1955-06-08", out["birthDate"])
	assert.Nil(t, out["deathDate"])
	assert.Nil(t, out["imageUrl"])
	assert.Equal(t, []uint{2, 9}, out["entities"])
	assert.Equal(t, []uint{}, out["products"])
	assert.NotContains(t, out, "websiteUrl")

	assoc := Project(ElementView{Element: domain.Element{ID: 1, Kind: domain.KindAssociation, Name: "ACM", WebsiteURL: "https://acm.org"}})
	assert.Equal(t, "https://acm.org", assoc["websiteUrl"])
	assert.Equal(t, []uint{}, assoc["entities"])
}

func TestCanonicalJSON(t *testing.T) {
	data, err := marshalCanonical(map[string]any{"b": 1, "a": []any{"<x>", nil, true}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["<x>",null,true],"b":1}`, string(data))

	_, err = marshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)
}

func TestPreconditionParsing(t *testing.T) {
	p := ParsePrecondition(`"abc", W/"def"`, "")
	assert.Equal(t, []string{"abc", "def"}, p.Tags)
	assert.True(t, p.Matches("def"))
	assert.False(t, p.Matches("xyz"))
	assert.True(t, ParsePrecondition("*").Matches("anything"))
	assert.False(t, ParsePrecondition("", " ").Present())

	assert.Equal(t, domain.CodePreconditionRequired, domain.CodeOf(requireFresh(Precondition{}, "abc")))
	assert.Equal(t, domain.CodePreconditionFailed, domain.CodeOf(requireFresh(ParsePrecondition("old"), "abc")))
	assert.NoError(t, requireFresh(ParsePrecondition(QuoteETag("abc")), "abc"))
	assert.NoError(t, checkFresh(Precondition{}, "abc"))
}
