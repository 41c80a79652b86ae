package domain

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

type InspectionStatus string

const (
	InspectionStatusInProgress InspectionStatus = "em_andamento"
	InspectionStatusCompleted  InspectionStatus = "concluida"
)

func (s InspectionStatus) IsValid() bool {
	return s == InspectionStatusInProgress || s == InspectionStatusCompleted
}

type ChecklistResult string

const (
	ChecklistConforming    ChecklistResult = "conforme"
	ChecklistNonConforming ChecklistResult = "nao_conforme"
	ChecklistNotApplicable ChecklistResult = "nao_aplicavel"
)

func (r ChecklistResult) IsValid() bool {
	switch r {
	case ChecklistConforming, ChecklistNonConforming, ChecklistNotApplicable:
		return true
	}
	return false
}

const (
	defaultDisplayName  = "Sem nome"
	defaultDisplayFleet = "Sem frota"
)

// Inspection is a completed vehicle inspection as captured on the device.
// JSON keys follow the remote API.
type Inspection struct {
	ID             *int64                     `json:"id,omitempty"`
	Name           string                     `json:"nome" validate:"required"`
	Registration   string                     `json:"matricula,omitempty"`
	Fleet          string                     `json:"frota" validate:"required"`
	Plate          string                     `json:"placa,omitempty"`
	Model          string                     `json:"modelo,omitempty"`
	Mileage        float64                    `json:"quilometragem" validate:"gte=0"`
	Checklist      map[string]ChecklistResult `json:"checklist" validate:"dive,oneof=conforme nao_conforme nao_aplicavel"`
	Ratings        map[string]int             `json:"avaliacoes" validate:"dive,gte=0,lte=5"`
	TechnicalState map[string]string          `json:"estado_tecnico"`
	Photos         Photos                     `json:"fotos"`
	Observations   []Observation              `json:"observacoes" validate:"dive"`
	Status         InspectionStatus           `json:"status,omitempty"`
	CreatedAt      string                     `json:"data_criacao,omitempty"`
	CompletedAt    string                     `json:"data_conclusao,omitempty"`
}

type Observation struct {
	Text  string `json:"texto"`
	Photo string `json:"foto"`
}

// Photos holds one reference per fixed camera slot.
type Photos struct {
	Odometer      string `json:"hodometro"`
	Front         string `json:"frente"`
	Rear          string `json:"traseira"`
	LeftSide      string `json:"lateral_esquerda"`
	RightSide     string `json:"lateral_direita"`
	InteriorFront string `json:"interior_frontal"`
	InteriorRear  string `json:"interior_traseiro"`
	Engine        string `json:"motor"`
}

// PhotoSlot pairs a slot name with the field holding its reference.
type PhotoSlot struct {
	Name string
	Ref  *string
}

// Slots returns the photo slots in wire order.
func (p *Photos) Slots() []PhotoSlot {
	return []PhotoSlot{
		{"hodometro", &p.Odometer},
		{"frente", &p.Front},
		{"traseira", &p.Rear},
		{"lateral_esquerda", &p.LeftSide},
		{"lateral_direita", &p.RightSide},
		{"interior_frontal", &p.InteriorFront},
		{"interior_traseiro", &p.InteriorRear},
		{"motor", &p.Engine},
	}
}

// IsLocalPhoto reports whether ref points at a file still on the device.
func IsLocalPhoto(ref string) bool {
	return strings.HasPrefix(ref, "file://")
}

const (
	mainPhotoPrefix        = "main_"
	observationPhotoPrefix = "observation_"
)

func MainPhotoKey(slot string) string {
	return mainPhotoPrefix + slot
}

func ObservationPhotoKey(index int) string {
	return observationPhotoPrefix + strconv.Itoa(index)
}

// LocalPhoto is a photo that still has to be uploaded.
type LocalPhoto struct {
	Key string
	URI string
}

// LocalPhotos lists photos that still reference local files, main slots
// first in slot order, then observations by index.
func (i *Inspection) LocalPhotos() []LocalPhoto {
	var photos []LocalPhoto
	for _, slot := range i.Photos.Slots() {
		if IsLocalPhoto(*slot.Ref) {
			photos = append(photos, LocalPhoto{Key: MainPhotoKey(slot.Name), URI: *slot.Ref})
		}
	}
	for idx, obs := range i.Observations {
		if IsLocalPhoto(obs.Photo) {
			photos = append(photos, LocalPhoto{Key: ObservationPhotoKey(idx), URI: obs.Photo})
		}
	}
	return photos
}

// WithUploadedURLs returns a copy where every local photo with an entry in
// urls is replaced by that URL. The receiver is not modified.
func (i *Inspection) WithUploadedURLs(urls map[string]string) *Inspection {
	out := i.Clone()
	for _, slot := range out.Photos.Slots() {
		if !IsLocalPhoto(*slot.Ref) {
			continue
		}
		if u := urls[MainPhotoKey(slot.Name)]; u != "" {
			*slot.Ref = u
		}
	}
	for idx := range out.Observations {
		if !IsLocalPhoto(out.Observations[idx].Photo) {
			continue
		}
		if u := urls[ObservationPhotoKey(idx)]; u != "" {
			out.Observations[idx].Photo = u
		}
	}
	return out
}

// Clone returns a deep copy.
func (i *Inspection) Clone() *Inspection {
	out := *i
	if i.ID != nil {
		id := *i.ID
		out.ID = &id
	}
	out.Checklist = maps.Clone(i.Checklist)
	out.Ratings = maps.Clone(i.Ratings)
	out.TechnicalState = maps.Clone(i.TechnicalState)
	out.Observations = slices.Clone(i.Observations)
	return &out
}

func (i *Inspection) DisplayName() string {
	if i.Name == "" {
		return defaultDisplayName
	}
	return i.Name
}

func (i *Inspection) DisplayFleet() string {
	if i.Fleet == "" {
		return defaultDisplayFleet
	}
	return i.Fleet
}
