package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLocalPhoto(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"file:///data/a.jpg", true},
		{"file://a.jpg", true},
		{"https://x/a.jpg", false},
		{"", false},
		{"/data/a.jpg", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLocalPhoto(tt.ref), tt.ref)
	}
}

func TestInspection_LocalPhotos(t *testing.T) {
	insp := &Inspection{
		Photos: Photos{
			Odometer: "file://odo.jpg",
			Front:    "https://cdn/front.jpg",
			Engine:   "file://engine.jpg",
		},
		Observations: []Observation{
			{Text: "scratch", Photo: "file://obs0.jpg"},
			{Text: "no photo"},
			{Text: "uploaded", Photo: "https://cdn/obs2.jpg"},
			{Text: "dent", Photo: "file://obs3.jpg"},
		},
	}

	got := insp.LocalPhotos()

	assert.Equal(t, []LocalPhoto{
		{Key: "main_hodometro", URI: "file://odo.jpg"},
		{Key: "main_motor", URI: "file://engine.jpg"},
		{Key: "observation_0", URI: "file://obs0.jpg"},
		{Key: "observation_3", URI: "file://obs3.jpg"},
	}, got)
}

func TestInspection_LocalPhotos_None(t *testing.T) {
	insp := &Inspection{Photos: Photos{Front: "https://cdn/front.jpg"}}
	assert.Empty(t, insp.LocalPhotos())
}

func TestInspection_WithUploadedURLs(t *testing.T) {
	insp := &Inspection{
		Name: "Ana",
		Photos: Photos{
			Odometer: "file://odo.jpg",
			Front:    "file://front.jpg",
			Rear:     "https://cdn/rear.jpg",
		},
		Observations: []Observation{
			{Text: "a", Photo: "file://obs0.jpg"},
		},
		Checklist: map[string]ChecklistResult{"pneus": ChecklistConforming},
	}

	out := insp.WithUploadedURLs(map[string]string{
		"main_hodometro": "https://x/odo.jpg",
		"main_traseira":  "https://x/should-not-apply.jpg",
		"observation_0":  "https://x/obs0.jpg",
	})

	assert.Equal(t, "https://x/odo.jpg", out.Photos.Odometer)
	assert.Equal(t, "file://front.jpg", out.Photos.Front, "missing url keeps the local reference")
	assert.Equal(t, "https://cdn/rear.jpg", out.Photos.Rear, "remote references are untouched")
	assert.Equal(t, "https://x/obs0.jpg", out.Observations[0].Photo)

	assert.Equal(t, "file://odo.jpg", insp.Photos.Odometer, "receiver unchanged")
	assert.Equal(t, "file://obs0.jpg", insp.Observations[0].Photo, "receiver observations unchanged")
}

func TestInspection_Clone(t *testing.T) {
	id := int64(7)
	insp := &Inspection{
		ID:             &id,
		Checklist:      map[string]ChecklistResult{"crlv": ChecklistConforming},
		Ratings:        map[string]int{"limpeza": 4},
		TechnicalState: map[string]string{"motor": "bom"},
		Observations:   []Observation{{Text: "a"}},
	}

	c := insp.Clone()
	*c.ID = 8
	c.Checklist["crlv"] = ChecklistNonConforming
	c.Ratings["limpeza"] = 1
	c.TechnicalState["motor"] = "ruim"
	c.Observations[0].Text = "b"

	assert.Equal(t, int64(7), *insp.ID)
	assert.Equal(t, ChecklistConforming, insp.Checklist["crlv"])
	assert.Equal(t, 4, insp.Ratings["limpeza"])
	assert.Equal(t, "bom", insp.TechnicalState["motor"])
	assert.Equal(t, "a", insp.Observations[0].Text)
}

func TestInspection_DisplayFallbacks(t *testing.T) {
	var empty Inspection
	assert.Equal(t, "Sem nome", empty.DisplayName())
	assert.Equal(t, "Sem frota", empty.DisplayFleet())

	named := Inspection{Name: "Ana", Fleet: "F-12"}
	assert.Equal(t, "Ana", named.DisplayName())
	assert.Equal(t, "F-12", named.DisplayFleet())
}

func TestInspection_JSONKeys(t *testing.T) {
	raw := `{
		"id": 42,
		"nome": "Ana",
		"frota": "F-12",
		"quilometragem": 1200.5,
		"checklist": {"pneus": "conforme"},
		"avaliacoes": {"limpeza": 5},
		"estado_tecnico": {"motor": "bom"},
		"fotos": {"hodometro": "file://a.jpg", "lateral_esquerda": "https://x/l.jpg"},
		"observacoes": [{"texto": "risco", "foto": ""}],
		"status": "concluida"
	}`

	var insp Inspection
	require.NoError(t, json.Unmarshal([]byte(raw), &insp))

	require.NotNil(t, insp.ID)
	assert.Equal(t, int64(42), *insp.ID)
	assert.Equal(t, "file://a.jpg", insp.Photos.Odometer)
	assert.Equal(t, "https://x/l.jpg", insp.Photos.LeftSide)
	assert.Equal(t, InspectionStatusCompleted, insp.Status)
	assert.Equal(t, "risco", insp.Observations[0].Text)
}

func TestChecklistResult_IsValid(t *testing.T) {
	assert.True(t, ChecklistConforming.IsValid())
	assert.True(t, ChecklistNotApplicable.IsValid())
	assert.False(t, ChecklistResult("talvez").IsValid())
	assert.True(t, InspectionStatusInProgress.IsValid())
	assert.False(t, InspectionStatus("draft").IsValid())
}
