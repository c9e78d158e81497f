package page

import (
	"encoding/json"
	"fmt"
)

// The snippets below run inside the host page. They always return an object
// so that the result can be decoded even when the page is not ready, and they
// report host exceptions as {error} instead of throwing.

const playInfoJS = `(function() {
  var pi = window.__playinfo__;
  if (!pi || !pi.data) return { present: false };
  var accept = pi.data.accept_quality;
  var desc = pi.data.accept_description;
  return {
    present: true,
    accept_quality: Array.isArray(accept) ? accept : [],
    accept_description: Array.isArray(desc) ? desc : []
  };
})()`

const playerPresentJS = `(function() {
  return { found: !!window.player };
})()`

const readyStateJS = `(function() {
  return { state: (typeof document !== 'undefined' && document.readyState) || '' };
})()`

const hasMethodJSFormat = `(function(m) {
  var p = window.player;
  return { found: !!p && typeof p[m] === 'function' };
})(%s)`

const callJSFormat = `(function(m, q) {
  var p = window.player;
  if (!p || typeof p[m] !== 'function') return { found: false };
  try {
    p[m](q);
    return { found: true };
  } catch (e) {
    return { found: true, error: String(e) };
  }
})(%s, %d)`

// The promise is parked in a page-global slot and resolved by awaitJSFormat.
const requestJSFormat = `(function(m, q, slot) {
  var p = window.player;
  if (!p || typeof p[m] !== 'function') return { found: false };
  try {
    var r = p[m](q, null);
    var slots = window.__autoQualitySlots = window.__autoQualitySlots || {};
    slots[slot] = Promise.resolve(r);
    return { found: true };
  } catch (e) {
    return { found: true, error: String(e) };
  }
})(%s, %d, %s)`

const awaitJSFormat = `(function(slot) {
  var slots = window.__autoQualitySlots || {};
  var pending = slots[slot];
  delete slots[slot];
  return Promise.resolve(pending).then(function() { return { found: true }; });
})(%s)`

const supportedQualitiesJS = `(function() {
  var p = window.player;
  if (!p || typeof p.getSupportedQualityList !== 'function') return { found: false };
  try {
    var list = p.getSupportedQualityList();
    return { found: true, qualities: Array.isArray(list) ? list : [] };
  } catch (e) {
    return { found: true, error: String(e) };
  }
})()`

// jsString quotes a Go string as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		panic(err.Error())
	}
	return string(b)
}

func hasMethodJS(method string) string {
	return fmt.Sprintf(hasMethodJSFormat, jsString(method))
}

func callJS(method string, q int) string {
	return fmt.Sprintf(callJSFormat, jsString(method), q)
}

func requestJS(method string, q int, slot string) string {
	return fmt.Sprintf(requestJSFormat, jsString(method), q, jsString(slot))
}

func awaitJS(slot string) string {
	return fmt.Sprintf(awaitJSFormat, jsString(slot))
}
