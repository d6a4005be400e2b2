package agent

// Page-side scripts the worker agent evaluates in the isolated world. Every
// asynchronous script pushes a response envelope through the colligoPush
// binding with the correlation id baked in; synchronous scripts return their
// value (or throw) directly.

// Host page selectors. These track the listing page's markup and are the
// first thing to update when the page changes.
const (
	rowSelector        = "[data-job-row], .job-card, tr.job-row"
	rowStatusSelector  = "[data-status], .job-status"
	rowTitleSelector   = "[data-title], .job-title"
	rowCompanySelector = "[data-company], .job-company"
	rowContactSelector = "[data-contact], .job-contact"

	panelSelector        = "[data-detail-panel], .detail-panel, aside.job-detail"
	panelTitleSelector   = "h1, [data-detail-title], .detail-title"
	panelCompanySelector = "[data-detail-company], .detail-company"
	panelManagerSelector = "[data-hiring-manager], .hiring-manager"
	panelManagerLink     = "[data-hiring-manager] a, .hiring-manager a"
	panelSummarySelector = "[data-detail-summary], .detail-summary"
	panelTargetSelector  = "a[data-apply-link], a.apply-link"
	panelActionSelector  = "button[data-apply], button.apply-button, a[data-apply]"

	tabSelector = "[data-detail-tab], .detail-tab"

	builderTitleInput   = "input[name='title'], #builder-title"
	builderCompanyInput = "input[name='company'], #builder-company"
	builderBodyInput    = "textarea[name='description'], #builder-body"
	builderSubmitButton = "button[data-generate], #builder-generate"
	builderDoneSelector = "[data-build-complete], .build-complete"
)

// collectItemsScript enumerates listing rows. Args: call id, row selector,
// status/title/company/contact selectors.
const collectItemsScript = `(() => {
	const push = (env) => colligoPush(JSON.stringify(env));
	const callId = %q;
	try {
		const rows = Array.from(document.querySelectorAll(%q));
		const items = rows.map((row, index) => {
			const pick = (sel) => {
				const el = row.querySelector(sel);
				return el ? el.textContent.trim() : '';
			};
			return {
				index: index,
				status: pick(%q).toLowerCase(),
				title: pick(%q),
				company: pick(%q),
				contact: pick(%q)
			};
		});
		push({ id: callId, kind: 'collect_items', ok: true, payload: items });
	} catch (e) {
		push({ id: callId, kind: 'collect_items', ok: false, error: String(e) });
	}
})()`

// simulateInteractionScript fires the gesture sequence the listing expects on
// a real row selection. Synchronous; throws when the row is missing. Args:
// row selector, index.
const simulateInteractionScript = `(() => {
	const rows = document.querySelectorAll(%q);
	const row = rows[%d];
	if (!row) {
		throw new Error('no listing row at requested index');
	}
	row.scrollIntoView({ block: 'center' });
	const fire = (type) => row.dispatchEvent(new MouseEvent(type, {
		bubbles: true,
		cancelable: true,
		view: window
	}));
	fire('pointerdown');
	fire('mousedown');
	fire('pointerup');
	fire('mouseup');
	fire('click');
	return true;
})()`

// requestDetailScript waits for the detail panel to render and pushes its
// parsed fields. Args: call id, deadline ms, panel selector, title, company,
// manager, manager link, summary, target link selectors.
const requestDetailScript = `(() => {
	const push = (env) => colligoPush(JSON.stringify(env));
	const callId = %q;
	const deadline = Date.now() + %d;
	const panelSel = %q;
	const attempt = () => {
		const panel = document.querySelector(panelSel);
		if (panel && panel.textContent.trim().length > 0) {
			const pick = (sel) => {
				const el = panel.querySelector(sel);
				return el ? el.textContent.trim() : '';
			};
			const managerLink = panel.querySelector(%q);
			const targetLink = panel.querySelector(%q);
			push({
				id: callId,
				kind: 'request_detail',
				ok: true,
				payload: {
					title: pick(%q),
					company: pick(%q),
					hiringManager: {
						name: pick(%q),
						profileUrl: managerLink && managerLink.href ? managerLink.href : ''
					},
					shortDescription: pick(%q),
					targetUrl: targetLink && targetLink.href ? targetLink.href : '',
					panelHtml: panel.outerHTML
				}
			});
			return;
		}
		if (Date.now() > deadline) {
			push({ id: callId, kind: 'request_detail', ok: false, error: 'detail panel did not appear' });
			return;
		}
		setTimeout(attempt, 250);
	};
	attempt();
})()`

// requestSecondaryScript switches the detail panel to a named tab and pushes
// the tab's text once it differs from the pre-click content. Args: call id,
// tab label, deadline ms, tab selector, panel selector.
const requestSecondaryScript = `(() => {
	const push = (env) => colligoPush(JSON.stringify(env));
	const callId = %q;
	const label = %q;
	const deadline = Date.now() + %d;
	const tabs = Array.from(document.querySelectorAll(%q));
	const tab = tabs.find((t) => t.textContent.trim().toLowerCase() === label);
	if (!tab) {
		push({ id: callId, kind: 'request_secondary', ok: false, error: 'no tab labeled ' + label });
		return;
	}
	const panelSel = %q;
	const panel = document.querySelector(panelSel);
	const before = panel ? panel.textContent.trim() : '';
	tab.click();
	const attempt = () => {
		const current = document.querySelector(panelSel);
		const text = current ? current.textContent.trim() : '';
		if (text.length > 0 && text !== before) {
			push({ id: callId, kind: 'request_secondary', ok: true, payload: text });
			return;
		}
		if (Date.now() > deadline) {
			push({ id: callId, kind: 'request_secondary', ok: false, error: 'tab content did not change' });
			return;
		}
		setTimeout(attempt, 250);
	};
	setTimeout(attempt, 250);
})()`

// triggerOutboundScript clicks the panel's outbound action control so the
// armed navigation shim can capture the destination. Synchronous; throws when
// no control is present. Args: panel selector, action selector.
const triggerOutboundScript = `(() => {
	const panel = document.querySelector(%q);
	const scope = panel || document;
	const control = scope.querySelector(%q);
	if (!control) {
		throw new Error('no outbound action control in detail panel');
	}
	control.click();
	return true;
})()`

// buildScript fills the downstream builder form from a record, triggers
// generation and pushes completion once the done marker appears. Args: call
// id, record JSON, deadline ms, title/company/body input selectors, submit
// button selector, done selector.
const buildScript = `(() => {
	const push = (env) => colligoPush(JSON.stringify(env));
	const callId = %q;
	const record = %s;
	const deadline = Date.now() + %d;
	const setValue = (sel, value) => {
		const el = document.querySelector(sel);
		if (el) {
			el.value = value || '';
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
		}
	};
	setValue(%q, record.title);
	setValue(%q, record.company);
	setValue(%q, record.fullDescription || record.shortDescription);
	const submit = document.querySelector(%q);
	if (!submit) {
		push({ id: callId, kind: 'build', ok: false, error: 'builder submit control not found' });
		return;
	}
	submit.click();
	const doneSel = %q;
	const attempt = () => {
		if (document.querySelector(doneSel)) {
			push({ id: callId, kind: 'build', ok: true });
			return;
		}
		if (Date.now() > deadline) {
			push({ id: callId, kind: 'build', ok: false, error: 'build did not complete before deadline' });
			return;
		}
		setTimeout(attempt, 500);
	};
	setTimeout(attempt, 500);
})()`
