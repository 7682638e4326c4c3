package hfhub

import "testing"

func TestExtractTrainedModelsFromHeadingLinks(t *testing.T) {
	page := `<html><body>
<h2>Dataset Summary</h2>
<p>Something else entirely.</p>
<h3>Models trained or fine-tuned on squad</h3>
<div>
  <a href="/models/org/qa-model">qa-model</a>
  <a href="https://hub.local/models/other/extractive-qa?library=transformers">extractive-qa</a>
  <a href="/models/org/qa-model">duplicate link</a>
  <a href="/datasets/unrelated/thing">not a model</a>
</div>
</body></html>`

	got := ExtractTrainedModels(page)
	want := []string{"org/qa-model", "other/extractive-qa"}
	if len(got) != len(want) {
		t.Fatalf("models: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("models[%d]: want=%q got=%q", i, want[i], got[i])
		}
	}
}

func TestExtractTrainedModelsFallsBackToHeadingParent(t *testing.T) {
	page := `<html><body>
<section>
  <h4>Models fine-tuned on this dataset</h4>
  <a href="/models/org/sibling-model">sibling</a>
</section>
</body></html>`

	got := ExtractTrainedModels(page)
	if len(got) != 1 || got[0] != "org/sibling-model" {
		t.Fatalf("parent fallback: got=%v", got)
	}
}

func TestExtractTrainedModelsFromJSONBlocks(t *testing.T) {
	page := `<html><body>
<script type="application/json">{"models":[{"id":"org/json-model"},{"id":"org/second"},{"name":"no-id"}],"other":1}</script>
<script type="application/json">not even json</script>
<script>{"models":[{"id":"org/wrong-script-type"}]}</script>
</body></html>`

	got := ExtractTrainedModels(page)
	want := []string{"org/json-model", "org/second"}
	if len(got) != len(want) {
		t.Fatalf("models: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("models[%d]: want=%q got=%q", i, want[i], got[i])
		}
	}
}

func TestExtractTrainedModelsAbsentSection(t *testing.T) {
	page := `<html><body><h2>Dataset card</h2><p>No training info.</p></body></html>`
	if got := ExtractTrainedModels(page); len(got) != 0 {
		t.Fatalf("absent section: want none got=%v", got)
	}
}
