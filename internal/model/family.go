package model

type Family struct {
	ID         string `json:"id"`
	FamilyName string `json:"familyName"`
	Saint      string `json:"saint"`
}
