package mcp

const categoriesURI = "expense:///categories"

type resource struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

type listResourcesResult struct {
	Resources []resource `json:"resources"`
}

type resourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type readResourceResult struct {
	Contents []resourceContent `json:"contents"`
}

var resources = []resource{
	{URI: categoriesURI, Name: "categories", MimeType: "application/json"},
}
