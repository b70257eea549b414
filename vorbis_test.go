package tag

import (
	"bytes"
	"testing"
)

func TestVorbisCommentsSetGet(t *testing.T) {
	c := &VorbisComments{}
	c.Add("TITLE", "One")
	c.Add("title", "Two")
	if got := c.Get("Title"); got != "One" {
		t.Errorf("Get returned %q, expected first value", got)
	}

	c.Set("TITLE", "Three")
	if len(c.Items) != 1 {
		t.Errorf("Set left %d items, expected 1", len(c.Items))
	}
	if c.Get("title") != "Three" {
		t.Errorf("Get after Set = %q", c.Get("title"))
	}

	c.Remove("TITLE")
	if c.Get("TITLE") != "" {
		t.Errorf("Remove did not remove")
	}
}

func TestVorbisCommentsWireRoundTrip(t *testing.T) {
	c := &VorbisComments{Vendor: "vendor"}
	c.Add("TITLE", "Test Title")
	c.Add("ARTIST", "A")
	c.Add("ARTIST", "B") // duplicate keys survive the wire format

	b := appendVorbisComments(nil, c, false)
	got, err := parseVorbisComments(bytes.NewReader(b), ParseOptions{}.Defaults())
	if err != nil {
		t.Fatalf("parseVorbisComments returned error: %v", err)
	}
	if got.Vendor != "vendor" {
		t.Errorf("Vendor = %q", got.Vendor)
	}
	if len(got.Items) != 3 {
		t.Errorf("got %d items, expected 3", len(got.Items))
	}
	// Emission order matches insertion order.
	for i := range c.Items {
		if got.Items[i] != c.Items[i] {
			t.Errorf("[%d] got %+v, expected %+v", i, got.Items[i], c.Items[i])
		}
	}
}

func TestVorbisCommentsPicture(t *testing.T) {
	pic := &Picture{MIMEType: "image/png", Type: PictureCoverFront, Description: "front", Data: pngHeader}
	c := &VorbisComments{Vendor: "v", Pictures: []*Picture{pic}}

	b := appendVorbisComments(nil, c, true)
	got, err := parseVorbisComments(bytes.NewReader(b), ParseOptions{}.Defaults())
	if err != nil {
		t.Fatalf("parseVorbisComments returned error: %v", err)
	}
	if len(got.Pictures) != 1 {
		t.Fatalf("got %d pictures", len(got.Pictures))
	}
	p := got.Pictures[0]
	if p.MIMEType != "image/png" || p.Description != "front" || !bytes.Equal(p.Data, pngHeader) {
		t.Errorf("picture = %+v", p)
	}
}

func TestVorbisCommentsMalformed(t *testing.T) {
	c := &VorbisComments{Vendor: "v"}
	b := appendVorbisComments(nil, c, false)

	// Append an item with no '=' separator and bump the count, which
	// sits right after the vendor string.
	b = append(b, 3, 0, 0, 0)
	b = append(b, "bad"...)
	b[4+len("v")] = 1

	if _, err := parseVorbisComments(bytes.NewReader(b), ParseOptions{Mode: Strict}); err == nil {
		t.Errorf("strict mode accepted a comment with no separator")
	}
	got, err := parseVorbisComments(bytes.NewReader(b), ParseOptions{Mode: BestAttempt})
	if err != nil {
		t.Fatalf("best-attempt mode returned error: %v", err)
	}
	if len(got.Items) != 0 {
		t.Errorf("malformed item kept: %+v", got.Items)
	}
}
