package overlay

// DefaultMarkerID is the DOM identity marker for the injected widget. The
// singleton guard and every later Eval look the element up by this id.
const DefaultMarkerID = "agent-mini-overlay"

// injectScript builds the widget DOM and wires the page side of the
// cross-context channel. It is idempotent: a second evaluation on the same
// document returns "exists" without touching the DOM. When the structural
// root is not there yet it returns "no-body" so the host can retry once
// after the load event.
//
// The page side stays deliberately dumb: pointer events and window messages
// are appended to a queue the host drains; all state decisions live in Go.
// The pointerdown/move handlers also move the element directly so dragging
// tracks the pointer 1:1 without a host round trip; the host re-applies the
// clamped authoritative position as it processes the same events.
const injectScript = `(marker, size, margin, x, y) => {
	if (!document.body) return "no-body";
	if (document.getElementById(marker)) return "exists";

	const queue = window.__agentOverlayQueue = window.__agentOverlayQueue || [];

	const style = document.createElement('style');
	style.textContent =
		'#' + marker + ' { position: fixed; width: ' + size + 'px; height: ' + size + 'px;' +
		' border-radius: 50%; background: #1a1a2e; border: 2px solid #4f8cff;' +
		' z-index: 2147483647; cursor: grab; user-select: none; touch-action: none;' +
		' display: flex; align-items: center; justify-content: center;' +
		' box-shadow: 0 2px 10px rgba(0,0,0,0.35); transition: transform 0.1s ease; }' +
		'#' + marker + ':hover { box-shadow: 0 2px 14px rgba(79,140,255,0.55); }' +
		'#' + marker + '.pressed { transform: scale(0.92); cursor: grabbing; }' +
		'#' + marker + '-icon { width: 55%; height: 55%; border-radius: 50%;' +
		' background: radial-gradient(circle at 35% 35%, #8ab4ff, #2f6bdb); pointer-events: none; }' +
		'#' + marker + '-badge { position: absolute; top: -6px; right: -6px;' +
		' min-width: 18px; height: 18px; padding: 0 4px; border-radius: 9px;' +
		' background: #e5484d; color: #fff; font: bold 11px/18px sans-serif;' +
		' text-align: center; display: none; pointer-events: none;' +
		' animation: ' + marker + '-pulse 1.2s ease-in-out infinite; }' +
		'@keyframes ' + marker + '-pulse { 0%, 100% { transform: scale(1); } 50% { transform: scale(1.25); } }';
	document.head.appendChild(style);

	const root = document.createElement('div');
	root.id = marker;
	root.style.left = x + 'px';
	root.style.top = y + 'px';

	const icon = document.createElement('div');
	icon.id = marker + '-icon';
	root.appendChild(icon);

	const badge = document.createElement('div');
	badge.id = marker + '-badge';
	root.appendChild(badge);

	document.body.appendChild(root);

	const clampAxis = (v, lo, hi) => hi < lo ? lo : Math.min(Math.max(v, lo), hi);
	let drag = null;

	root.addEventListener('pointerdown', (ev) => {
		queue.push({ t: 'pointer', pt: 'down', x: ev.clientX, y: ev.clientY, button: ev.button });
		if (ev.button !== 0) return;
		const rect = root.getBoundingClientRect();
		drag = { px: ev.clientX, py: ev.clientY, ox: rect.left, oy: rect.top };
		root.classList.add('pressed');
		root.setPointerCapture(ev.pointerId);
		ev.preventDefault();
	});

	root.addEventListener('pointermove', (ev) => {
		if (!drag) return;
		queue.push({ t: 'pointer', pt: 'move', x: ev.clientX, y: ev.clientY });
		const nx = clampAxis(drag.ox + ev.clientX - drag.px, margin, window.innerWidth - size - margin);
		const ny = clampAxis(drag.oy + ev.clientY - drag.py, margin, window.innerHeight - size - margin);
		root.style.left = nx + 'px';
		root.style.top = ny + 'px';
	});

	root.addEventListener('pointerup', (ev) => {
		queue.push({ t: 'pointer', pt: 'up', x: ev.clientX, y: ev.clientY, button: ev.button });
		if (drag) {
			drag = null;
			root.classList.remove('pressed');
		}
		if (ev.button !== 0) return;
		// The toggle intent fires on every primary release, drag or not.
		queue.push({ t: 'message', m: { source: 'agent-mini-overlay', type: 'TOGGLE_SIDE_PANEL' } });
	});

	window.addEventListener('message', (ev) => {
		const d = ev.data;
		if (d && typeof d === 'object' && typeof d.source === 'string') {
			queue.push({ t: 'message', m: d });
		}
	});

	return "injected";
}`

// renderBadgeScript updates badge visibility and content from the mirrored
// run state.
const renderBadgeScript = `(marker, visible, step) => {
	const badge = document.getElementById(marker + '-badge');
	if (!badge) return false;
	if (visible) {
		badge.textContent = String(step);
		badge.style.display = 'block';
	} else {
		badge.style.display = 'none';
	}
	return true;
}`

// applyPositionScript moves the widget to a host-computed clamped position.
const applyPositionScript = `(marker, x, y) => {
	const root = document.getElementById(marker);
	if (!root) return false;
	root.style.left = x + 'px';
	root.style.top = y + 'px';
	return true;
}`

// drainQueueScript empties and returns the page-side event queue.
const drainQueueScript = `() => {
	const q = window.__agentOverlayQueue;
	if (!Array.isArray(q) || q.length === 0) return [];
	return q.splice(0, q.length);
}`
